package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const maxDescriptorSize = 1 << 20

// Descriptor holds the fields of a UPnP device description document that
// identify a speaker.
type Descriptor struct {
	Manufacturer string `json:"manufacturer"`
	FriendlyName string `json:"friendly_name"`
	UDN          string `json:"udn"`
	ModelName    string `json:"model_name"`
	ModelNumber  string `json:"model_number"`
	DeviceID     string `json:"device_id"`
	WlanMAC      string `json:"wlan_mac"`
}

var descriptorTags = map[string]*regexp.Regexp{}

func init() {
	for _, tag := range []string{"manufacturer", "friendlyName", "UDN", "modelName", "modelNumber", "DeviceID", "wlanMac"} {
		descriptorTags[tag] = regexp.MustCompile(`<` + tag + `>(.*?)</` + tag + `>`)
	}
}

// ParseDescriptor extracts the identifying fields from a description
// document. Missing tags leave their field empty.
func ParseDescriptor(body string) Descriptor {
	return Descriptor{
		Manufacturer: matchBetweenTags("manufacturer", body),
		FriendlyName: matchBetweenTags("friendlyName", body),
		UDN:          matchBetweenTags("UDN", body),
		ModelName:    matchBetweenTags("modelName", body),
		ModelNumber:  matchBetweenTags("modelNumber", body),
		DeviceID:     matchBetweenTags("DeviceID", body),
		WlanMAC:      matchBetweenTags("wlanMac", body),
	}
}

// StableID is the UDN without its "uuid:" scheme.
func (d Descriptor) StableID() string {
	return strings.TrimPrefix(d.UDN, "uuid:")
}

// DisplayName is the friendly name without the "ACT-" prefix HEOS units
// advertise.
func (d Descriptor) DisplayName() string {
	return strings.Replace(d.FriendlyName, "ACT-", "", 1)
}

func matchBetweenTags(tag, input string) string {
	re, ok := descriptorTags[tag]
	if !ok {
		return ""
	}
	m := re.FindStringSubmatch(input)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// DescriptorFetcher downloads description documents.
type DescriptorFetcher struct {
	client *http.Client
}

// NewDescriptorFetcher creates a fetcher. A nil client gets a 10 second
// timeout default.
func NewDescriptorFetcher(client *http.Client) *DescriptorFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &DescriptorFetcher{client: client}
}

// Fetch retrieves and parses the document at location.
func (f *DescriptorFetcher) Fetch(ctx context.Context, location string) (Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return Descriptor{}, fmt.Errorf("build descriptor request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Descriptor{}, fmt.Errorf("fetch descriptor %s: %w", location, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Descriptor{}, fmt.Errorf("fetch descriptor %s: %s", location, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptorSize))
	if err != nil {
		return Descriptor{}, fmt.Errorf("read descriptor %s: %w", location, err)
	}

	return ParseDescriptor(string(body)), nil
}
