package discovery

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDescriptor = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <device>
    <deviceType>urn:schemas-denon-com:device:ACT-Denon:1</deviceType>
    <friendlyName>ACT-Living Room</friendlyName>
    <manufacturer>Denon</manufacturer>
    <modelName>HEOS 7</modelName>
    <modelNumber>DWSHS7</modelNumber>
    <UDN>uuid:8c7b3a10-0000-1000-8000-0005cd123456</UDN>
    <DeviceID>AIOS:0001</DeviceID>
    <wlanMac>00:05:CD:12:34:56</wlanMac>
  </device>
</root>`

func TestParseDescriptor(t *testing.T) {
	d := ParseDescriptor(sampleDescriptor)

	assert.Equal(t, "Denon", d.Manufacturer)
	assert.Equal(t, "ACT-Living Room", d.FriendlyName)
	assert.Equal(t, "Living Room", d.DisplayName())
	assert.Equal(t, "8c7b3a10-0000-1000-8000-0005cd123456", d.StableID())
	assert.Equal(t, "HEOS 7", d.ModelName)
	assert.Equal(t, "DWSHS7", d.ModelNumber)
	assert.Equal(t, "AIOS:0001", d.DeviceID)
	assert.Equal(t, "00:05:CD:12:34:56", d.WlanMAC)
}

func TestParseDescriptor_MissingTags(t *testing.T) {
	d := ParseDescriptor("<root><manufacturer>Marantz</manufacturer></root>")

	assert.Equal(t, "Marantz", d.Manufacturer)
	assert.Empty(t, d.UDN)
	assert.Empty(t, d.FriendlyName)
}

func TestDescriptorFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upnp/desc/aios_device/aios_device.xml" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(sampleDescriptor))
	}))
	defer srv.Close()

	f := NewDescriptorFetcher(srv.Client())

	d, err := f.Fetch(context.Background(), srv.URL+"/upnp/desc/aios_device/aios_device.xml")
	require.NoError(t, err)
	assert.Equal(t, "HEOS 7", d.ModelName)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestParseSearchResponse(t *testing.T) {
	from := &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 1900}
	raw := strings.Join([]string{
		"HTTP/1.1 200 OK",
		"CACHE-CONTROL: max-age=180",
		"LOCATION: http://10.0.0.9:60006/upnp/desc/aios_device/aios_device.xml",
		"ST: urn:schemas-denon-com:device:ACT-Denon:1",
		"USN: uuid:8c7b3a10::urn:schemas-denon-com:device:ACT-Denon:1",
		"", "",
	}, "\r\n")

	res, ok := parseSearchResponse([]byte(raw), from, SearchTarget)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.9", res.Address)
	assert.Equal(t, "http://10.0.0.9:60006/upnp/desc/aios_device/aios_device.xml", res.Location)
	assert.Equal(t, SearchTarget, res.SearchTarget)
	assert.Nil(t, res.Descriptor)

	_, ok = parseSearchResponse([]byte(strings.Replace(raw, SearchTarget, "upnp:rootdevice", 1)), from, SearchTarget)
	assert.False(t, ok, "other search targets are ignored")

	_, ok = parseSearchResponse([]byte("garbage"), from, SearchTarget)
	assert.False(t, ok)
}

func TestParseNotify(t *testing.T) {
	from := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 1900}
	alive := strings.Join([]string{
		"NOTIFY * HTTP/1.1",
		"HOST: 239.255.255.250:1900",
		"LOCATION: http://10.0.0.5:60006/upnp/desc/aios_device/aios_device.xml",
		"NT: urn:schemas-denon-com:device:ACT-Denon:1",
		"NTS: ssdp:alive",
		"USN: uuid:1234::urn:schemas-denon-com:device:ACT-Denon:1",
		"", "",
	}, "\r\n")

	res, ok := parseNotify([]byte(alive), from, SearchTarget)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", res.Address)

	byebye := strings.Replace(alive, "ssdp:alive", "ssdp:byebye", 1)
	_, ok = parseNotify([]byte(byebye), from, SearchTarget)
	assert.False(t, ok)
}

func TestScanner_Search(t *testing.T) {
	s := NewScanner(WithSearchTarget("urn:test"))

	s.Search()
	s.Search()
	assert.Len(t, s.searchNow, 1, "pending searches coalesce")
	assert.Contains(t, string(s.searchRequest()), "ST: urn:test\r\n")
	assert.Contains(t, string(s.searchRequest()), "MAN: \"ssdp:discover\"")
}

const searchReply = "HTTP/1.1 200 OK\r\n" +
	"LOCATION: http://10.0.0.9:60006/upnp/desc/aios_device/aios_device.xml\r\n" +
	"ST: urn:schemas-denon-com:device:ACT-Denon:1\r\n" +
	"USN: uuid:8c7b3a10::urn:schemas-denon-com:device:ACT-Denon:1\r\n\r\n"

// replyConn answers every read with a search reply until its read
// deadline passes.
type replyConn struct {
	net.PacketConn

	mu       sync.Mutex
	deadline time.Time
}

func (c *replyConn) ReadFrom(b []byte) (int, net.Addr, error) {
	c.mu.Lock()
	deadline := c.deadline
	c.mu.Unlock()
	if !deadline.IsZero() && !time.Now().Before(deadline) {
		return 0, nil, os.ErrDeadlineExceeded
	}
	return copy(b, searchReply), &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 1900}, nil
}

func (c *replyConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	return nil
}

func TestScanner_ListenStopsBeforeReturn(t *testing.T) {
	s := NewScanner()

	for i := 0; i < 200; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		results := make(chan Result)

		wait := s.listen(ctx, results,
			listener{conn: &replyConn{}, parse: parseSearchResponse},
			listener{conn: &replyConn{}, parse: parseSearchResponse},
		)

		res := <-results
		require.Equal(t, "10.0.0.9", res.Address)

		cancel()
		wait()
		assert.NotPanics(t, func() { close(results) }, "iteration %d", i)
	}
}
