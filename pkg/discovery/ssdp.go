package discovery

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/ipv4"
)

// SearchTarget is the SSDP type HEOS speakers answer to.
const SearchTarget = "urn:schemas-denon-com:device:ACT-Denon:1"

const (
	ssdpGroup         = "239.255.255.250"
	ssdpPort          = 1900
	defaultInterval   = 60 * time.Second
	defaultMX         = 3
	maxDatagramSize   = 8192
	multicastHopLimit = 2
)

// Result is one sighting of a device on the network.
type Result struct {
	Address      string
	Location     string
	USN          string
	SearchTarget string
	// Descriptor is set when the sighting already carried device metadata;
	// otherwise it must be fetched from Location.
	Descriptor *Descriptor
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithSearchTarget overrides the SSDP search target.
func WithSearchTarget(st string) ScannerOption {
	return func(s *Scanner) { s.searchTarget = st }
}

// WithInterval sets how often an M-SEARCH is multicast.
func WithInterval(d time.Duration) ScannerOption {
	return func(s *Scanner) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Scanner finds speakers by periodic M-SEARCH and by listening to NOTIFY
// announcements.
type Scanner struct {
	searchTarget string
	interval     time.Duration
	searchNow    chan struct{}
}

// NewScanner creates a scanner for HEOS speakers.
func NewScanner(opts ...ScannerOption) *Scanner {
	s := &Scanner{
		searchTarget: SearchTarget,
		interval:     defaultInterval,
		searchNow:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search requests an immediate M-SEARCH from a running scanner.
func (s *Scanner) Search() {
	select {
	case s.searchNow <- struct{}{}:
	default:
	}
}

// Run scans until ctx is done, delivering sightings on results.
func (s *Scanner) Run(ctx context.Context, results chan<- Result) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return fmt.Errorf("listen for search responses: %w", err)
	}
	defer func() { _ = conn.Close() }()

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(multicastHopLimit); err != nil {
		log.Debug().Err(err).Msg("Failed to set SSDP multicast TTL")
	}

	listeners := []listener{{conn: conn, parse: parseSearchResponse}}
	if notify, err := listenNotify(); err != nil {
		log.Warn().Err(err).Msg("SSDP NOTIFY listener unavailable, relying on M-SEARCH only")
	} else {
		defer func() { _ = notify.Close() }()
		listeners = append(listeners, listener{conn: notify, parse: parseNotify})
	}

	// Callers close results once Run returns, so no read loop may outlive it.
	wait := s.listen(ctx, results, listeners...)
	defer wait()

	group := &net.UDPAddr{IP: net.ParseIP(ssdpGroup), Port: ssdpPort}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := conn.WriteToUDP(s.searchRequest(), group); err != nil {
			log.Warn().Err(err).Msg("Failed to send SSDP M-SEARCH")
		} else {
			log.Debug().Str("st", s.searchTarget).Msg("Sent SSDP M-SEARCH")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-s.searchNow:
		}
	}
}

func (s *Scanner) searchRequest() []byte {
	return []byte("M-SEARCH * HTTP/1.1\r\n" +
		fmt.Sprintf("HOST: %s:%d\r\n", ssdpGroup, ssdpPort) +
		"MAN: \"ssdp:discover\"\r\n" +
		fmt.Sprintf("MX: %d\r\n", defaultMX) +
		"ST: " + s.searchTarget + "\r\n\r\n")
}

type parseFunc func(data []byte, from net.Addr, target string) (Result, bool)

type listener struct {
	conn  net.PacketConn
	parse parseFunc
}

// listen starts a read loop per listener. The returned func blocks until
// every loop has stopped.
func (s *Scanner) listen(ctx context.Context, results chan<- Result, listeners ...listener) func() {
	var wg sync.WaitGroup
	for _, l := range listeners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.readLoop(ctx, l.conn, results, l.parse)
		}()
	}
	return wg.Wait
}

func (s *Scanner) readLoop(ctx context.Context, conn net.PacketConn, results chan<- Result, parse parseFunc) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			log.Debug().Err(err).Msg("SSDP read failed")
			return
		}

		result, ok := parse(buf[:n], from, s.searchTarget)
		if !ok {
			continue
		}

		select {
		case results <- result:
		case <-ctx.Done():
			return
		}
	}
}

// listenNotify joins the SSDP group on every multicast-capable interface.
func listenNotify() (net.PacketConn, error) {
	conn, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", ssdpPort))
	if err != nil {
		return nil, err
	}

	pc := ipv4.NewPacketConn(conn)
	group := &net.UDPAddr{IP: net.ParseIP(ssdpGroup)}

	ifaces, err := net.Interfaces()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	joined := 0
	for i := range ifaces {
		ifi := &ifaces[i]
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := pc.JoinGroup(ifi, group); err != nil {
			log.Debug().Err(err).Str("interface", ifi.Name).Msg("Failed to join SSDP group")
			continue
		}
		joined++
	}
	if joined == 0 {
		_ = conn.Close()
		return nil, fmt.Errorf("no interface joined %s", ssdpGroup)
	}
	return conn, nil
}

func parseSearchResponse(data []byte, from net.Addr, target string) (Result, bool) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), nil)
	if err != nil {
		return Result{}, false
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, false
	}
	return newResult(resp.Header, "ST", from, target)
}

func parseNotify(data []byte, from net.Addr, target string) (Result, bool) {
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(data)))
	if err != nil {
		return Result{}, false
	}
	_ = req.Body.Close()

	if req.Method != "NOTIFY" || !strings.EqualFold(req.Header.Get("NTS"), "ssdp:alive") {
		return Result{}, false
	}
	return newResult(req.Header, "NT", from, target)
}

func newResult(h http.Header, typeHeader string, from net.Addr, target string) (Result, bool) {
	st := h.Get(typeHeader)
	if !strings.EqualFold(st, target) {
		return Result{}, false
	}

	location := h.Get("Location")
	if location == "" {
		return Result{}, false
	}

	return Result{
		Address:      hostOf(from),
		Location:     location,
		USN:          h.Get("USN"),
		SearchTarget: st,
	}, true
}

func hostOf(addr net.Addr) string {
	if udp, ok := addr.(*net.UDPAddr); ok {
		return udp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
