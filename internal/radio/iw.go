package radio

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// IWScanner scans with the Linux `iw` tool, as available on the Pi rig.
// Triggering a scan needs CAP_NET_ADMIN; without it iw fails and the walk
// records an empty snapshot instead.
type IWScanner struct {
	Iface string

	// run executes the command and returns stdout; replaced in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewIWScanner creates a scanner for the given wireless interface.
func NewIWScanner(iface string) *IWScanner {
	if iface == "" {
		iface = "wlan0"
	}
	return &IWScanner{Iface: iface, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w (%s)", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Scan implements Scanner.
func (s *IWScanner) Scan(ctx context.Context) ([]Reading, error) {
	out, err := s.run(ctx, "iw", "dev", s.Iface, "scan")
	if err != nil {
		return nil, err
	}
	return parseIWScan(bytes.NewReader(out))
}

// parseIWScan extracts BSSID, SSID and signal from `iw dev <if> scan`
// output, keeping the order iw reports.
func parseIWScan(r io.Reader) ([]Reading, error) {
	var (
		out []Reading
		cur *Reading
	)
	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(line, "BSS ") {
			flush()
			bssid := strings.TrimPrefix(line, "BSS ")
			if i := strings.IndexAny(bssid, "( "); i >= 0 {
				bssid = bssid[:i]
			}
			cur = &Reading{BSSID: strings.ToLower(bssid)}
			continue
		}
		if cur == nil {
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "SSID:"):
			cur.SSID = strings.TrimSpace(strings.TrimPrefix(trimmed, "SSID:"))
		case strings.HasPrefix(trimmed, "signal:"):
			fields := strings.Fields(strings.TrimPrefix(trimmed, "signal:"))
			if len(fields) == 0 {
				continue
			}
			dbm, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return nil, fmt.Errorf("parse signal %q: %w", trimmed, err)
			}
			cur.RSSI = int(math.Round(dbm))
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read iw output: %w", err)
	}
	return out, nil
}
