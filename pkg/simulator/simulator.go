// Package simulator is a local stand-in for a charger: it serves the
// device HTTP contract so the update flow can be exercised end to end
// without hardware on the bench.
package simulator

import (
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Options configures the simulated device
type Options struct {
	Name            string // Self-reported device name
	SerialNumber    string // Stable identifier
	FirmwareVersion string // Version reported before an update
	NextVersion     string // Version reported after a rear reboot follows an upload
}

// Simulator is a fake charger behind a gin router
type Simulator struct {
	router *gin.Engine
	logger *logrus.Logger
	opts   Options

	mu             sync.Mutex
	mainBytes      int
	rearBytes      int
	rearUploaded   bool
	rearRebooted   bool
	rebootsByBoard map[string]int
}

// New creates a simulator with the given identity
func New(opts Options, logger *logrus.Logger) *Simulator {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Name == "" {
		opts.Name = "KLVR Charger Pro (sim)"
	}
	if opts.FirmwareVersion == "" {
		opts.FirmwareVersion = "0.0.0"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Simulator{
		router:         router,
		logger:         logger,
		opts:           opts,
		rebootsByBoard: make(map[string]int),
	}

	router.GET("/api/v2/device/info", s.handleInfo)
	router.POST("/api/v2/device/firmware_charger", s.handleUpload("main"))
	router.POST("/api/v2/device/firmware_rear", s.handleUpload("rear"))
	router.POST("/api/v2/device/reboot", s.handleReboot)

	return s
}

// Router exposes the handler so tests can mount it on an httptest server
func (s *Simulator) Router() *gin.Engine {
	return s.router
}

// Run serves the simulated device on the given address, e.g. ":8000".
func (s *Simulator) Run(addr string) error {
	s.logger.Infof("Simulated charger %q listening on %s", s.opts.Name, addr)
	return s.router.Run(addr)
}

// UploadedBytes reports how many firmware bytes each board accepted.
func (s *Simulator) UploadedBytes() (mainBytes, rearBytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mainBytes, s.rearBytes
}

// Reboots reports how many reboot commands each board received.
func (s *Simulator) Reboots(board string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebootsByBoard[board]
}

func (s *Simulator) handleInfo(c *gin.Context) {
	s.mu.Lock()
	version := s.opts.FirmwareVersion
	if s.opts.NextVersion != "" && s.rearUploaded && s.rearRebooted {
		version = s.opts.NextVersion
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"name":            s.opts.Name,
		"firmwareVersion": version,
		"serialNumber":    s.opts.SerialNumber,
	})
}

func (s *Simulator) handleUpload(board string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusBadRequest, "read failed")
			return
		}
		// The real device rejects uploads without an exact length.
		if c.Request.ContentLength != int64(len(body)) {
			c.String(http.StatusBadRequest, "content length mismatch")
			return
		}

		s.mu.Lock()
		if board == "main" {
			s.mainBytes = len(body)
		} else {
			s.rearBytes = len(body)
			s.rearUploaded = true
			// A fresh image needs its own reboot before it reports.
			s.rearRebooted = false
		}
		s.mu.Unlock()

		s.logger.Debugf("Accepted %d-byte %s image", len(body), board)
		c.Status(http.StatusOK)
	}
}

func (s *Simulator) handleReboot(c *gin.Context) {
	board := c.Query("board")
	if board != "main" && board != "rear" {
		c.String(http.StatusBadRequest, "unknown board")
		return
	}

	s.mu.Lock()
	s.rebootsByBoard[board]++
	if board == "rear" {
		s.rearRebooted = true
	}
	s.mu.Unlock()

	s.logger.Debugf("Reboot requested for %s board", board)
	c.Status(http.StatusOK)
}
