package position

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/shaunagostinho/navcore/internal/geo"
)

// hdopToMeters approximates horizontal accuracy from HDOP for consumer receivers.
const hdopToMeters = 5.0

// NMEASource reads standard NMEA 0183 sentences from a UART GPS.
// Compatible with u-blox NEO-M8N and any standard NMEA GPS.
type NMEASource struct {
	portPath string
	baudRate int
	logger   *zap.Logger

	mu      sync.Mutex
	port    io.ReadCloser
	scanner *bufio.Scanner
	fix     nmeaFix
}

// NMEAConfig holds configuration for the NMEA GPS source.
type NMEAConfig struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
}

// nmeaFix accumulates fields from RMC and GGA sentences of one epoch.
type nmeaFix struct {
	valid   bool
	lat     float64
	lng     float64
	speed   float64
	heading float64
	hdop    float64
	quality int
	at      time.Time
}

// NewNMEA creates a new NMEA GPS source.
func NewNMEA(cfg NMEAConfig, logger *zap.Logger) *NMEASource {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600 // Standard NMEA default
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NMEASource{
		portPath: cfg.PortPath,
		baudRate: cfg.BaudRate,
		logger:   logger.Named("nmea"),
	}
}

func (n *NMEASource) Name() string { return "NMEA GPS" }

// Connect opens the serial port. A port the process may not open is
// reported as PermissionDenied; any other failure as PositionUnavailable.
func (n *NMEASource) Connect() error {
	mode := &serial.Mode{
		BaudRate: n.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(n.portPath, mode)
	if err != nil {
		var pe *serial.PortError
		if errors.As(err, &pe) && pe.Code() == serial.PermissionDenied {
			return newError(PermissionDenied, "", fmt.Errorf("open %s: %w", n.portPath, err))
		}
		return newError(PositionUnavailable, "", fmt.Errorf("open %s: %w", n.portPath, err))
	}
	if err := port.SetReadTimeout(200 * time.Millisecond); err != nil {
		port.Close()
		return newError(PositionUnavailable, "", fmt.Errorf("set read timeout on %s: %w", n.portPath, err))
	}
	n.attach(port)
	n.logger.Info("connected", zap.String("port", n.portPath), zap.Int("baud", n.baudRate))
	return nil
}

func (n *NMEASource) attach(r io.ReadCloser) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.port = r
	n.scanner = bufio.NewScanner(r)
}

func (n *NMEASource) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.port == nil {
		return nil
	}
	err := n.port.Close()
	n.port = nil
	n.scanner = nil
	return err
}

// Read reads NMEA sentences until it has an RMC and a GGA, or the read
// window passes. An RMC with void status is PositionUnavailable.
func (n *NMEASource) Read() (*Sample, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.scanner == nil {
		return nil, newError(PositionUnavailable, "gps not connected", nil)
	}

	// Read up to 20 lines to find RMC + GGA
	gotRMC := false
	gotGGA := false
	for i := 0; i < 20 && !(gotRMC && gotGGA); i++ {
		if !n.scanner.Scan() {
			break
		}
		line := strings.TrimSpace(n.scanner.Text())
		if !strings.HasPrefix(line, "$") || !validateNMEAChecksum(line) {
			continue
		}

		switch {
		case strings.HasPrefix(line, "$GPRMC") || strings.HasPrefix(line, "$GNRMC"):
			gotRMC = n.parseRMC(line)
		case strings.HasPrefix(line, "$GPGGA") || strings.HasPrefix(line, "$GNGGA"):
			gotGGA = n.parseGGA(line)
		}
	}

	if !gotRMC {
		return nil, nil
	}
	if !n.fix.valid {
		return nil, newError(PositionUnavailable, "gps has no fix", nil)
	}

	s := &Sample{
		Coordinate: geo.Coordinate{Lat: n.fix.lat, Lng: n.fix.lng},
		Speed:      ptr(n.fix.speed),
		Heading:    ptr(n.fix.heading),
		Timestamp:  n.fix.at,
	}
	if n.fix.hdop > 0 {
		s.Accuracy = ptr(n.fix.hdop * hdopToMeters)
	}
	return s, nil
}

func (n *NMEASource) parseRMC(line string) bool {
	// $GPRMC,hhmmss.ss,A,llll.ll,a,yyyyy.yy,a,x.x,x.x,ddmmyy,x.x,a*hh
	parts := splitNMEA(line)
	if len(parts) < 10 {
		return false
	}

	n.fix.valid = parts[2] == "A"
	n.fix.at = parseNMEATime(parts[9], parts[1])
	if !n.fix.valid {
		return true
	}

	n.fix.lat = parseNMEACoord(parts[3], parts[4])
	n.fix.lng = parseNMEACoord(parts[5], parts[6])
	if spd, err := strconv.ParseFloat(parts[7], 64); err == nil {
		n.fix.speed = spd * 1.852 // Knots to km/h
	}
	if hdg, err := strconv.ParseFloat(parts[8], 64); err == nil {
		n.fix.heading = hdg
	}
	return true
}

func (n *NMEASource) parseGGA(line string) bool {
	// $GPGGA,hhmmss.ss,llll.ll,a,yyyyy.yy,a,x,xx,x.x,x.x,M,x.x,M,x.x,xxxx*hh
	parts := splitNMEA(line)
	if len(parts) < 11 {
		return false
	}

	if fix, err := strconv.Atoi(parts[6]); err == nil {
		n.fix.quality = fix
	}
	n.fix.hdop = 0
	if n.fix.quality > 0 {
		if hdop, err := strconv.ParseFloat(parts[8], 64); err == nil {
			n.fix.hdop = hdop
		}
	}
	return true
}

// parseNMEATime combines the RMC date (ddmmyy) and time (hhmmss.ss) fields
// in UTC. Unparseable fields yield the zero time.
func parseNMEATime(date, clock string) time.Time {
	if len(date) != 6 || len(clock) < 6 {
		return time.Time{}
	}
	t, err := time.Parse("020106150405", date+clock[:6])
	if err != nil {
		return time.Time{}
	}
	if len(clock) > 6 {
		if frac, err := strconv.ParseFloat("0"+clock[6:], 64); err == nil {
			t = t.Add(time.Duration(frac * float64(time.Second)))
		}
	}
	return t
}

// splitNMEA splits a sentence and strips the checksum suffix.
func splitNMEA(line string) []string {
	if idx := strings.Index(line, "*"); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimPrefix(line, "$")
	return strings.Split(line, ",")
}

// parseNMEACoord converts NMEA ddmm.mmmm format to decimal degrees.
func parseNMEACoord(raw, dir string) float64 {
	if raw == "" || dir == "" {
		return math.NaN()
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return math.NaN()
	}
	deg := math.Floor(val / 100)
	minutes := val - deg*100
	result := deg + minutes/60

	if dir == "S" || dir == "W" {
		result = -result
	}
	return result
}

// validateNMEAChecksum checks the XOR checksum after *.
func validateNMEAChecksum(line string) bool {
	idx := strings.Index(line, "*")
	if idx < 0 || idx+3 > len(line) {
		return false
	}
	body := line[1:idx] // Between $ and *
	var calc byte
	for i := 0; i < len(body); i++ {
		calc ^= body[i]
	}
	expected, err := strconv.ParseUint(line[idx+1:idx+3], 16, 8)
	if err != nil {
		return false
	}
	return byte(expected) == calc
}
