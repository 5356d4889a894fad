package firmware

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/klvr/charger-tools/pkg/models"
)

// Firmware files are named main_v1.8.3.signed.bin / rear_v1.8.3.signed.bin,
// optionally with a hyphenated pre-release tag before .signed.bin.
var versionPattern = regexp.MustCompile(`_v(\d+\.\d+\.\d+(?:-[A-Za-z0-9.]+)?)\.signed\.bin$`)

const (
	signedSuffix = ".signed.bin"

	// BoardMain and BoardRear are the two independently flashable
	// microcontrollers inside one charger.
	BoardMain = "main"
	BoardRear = "rear"
)

// Scanner finds and pairs signed firmware files in a directory
type Scanner struct {
	dir    string
	logger *logrus.Logger
}

// NewScanner creates a scanner for the given firmware directory
func NewScanner(dir string, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		dir:    dir,
		logger: logger,
	}
}

// Scan lists the directory and returns matched main+rear pairs, newest
// first by the later of each pair's two modification times. Files whose
// names carry no parseable version are skipped, not errors.
func (s *Scanner) Scan() ([]models.FirmwarePair, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &ConfigurationError{Dir: s.dir, Err: err}
	}

	var mains []models.FirmwareFile
	rears := make(map[string]models.FirmwareFile)
	mainSeen, rearSeen := false, false

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var board string
		switch {
		case strings.HasPrefix(name, BoardMain+"_") && strings.HasSuffix(name, signedSuffix):
			board = BoardMain
			mainSeen = true
		case strings.HasPrefix(name, BoardRear+"_") && strings.HasSuffix(name, signedSuffix):
			board = BoardRear
			rearSeen = true
		default:
			continue
		}

		m := versionPattern.FindStringSubmatch(name)
		if m == nil {
			s.logger.Debugf("Skipping %s: no version in filename", name)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			s.logger.Debugf("Skipping %s: %v", name, err)
			continue
		}

		file := models.FirmwareFile{
			Path:    filepath.Join(s.dir, name),
			Board:   board,
			Version: m[1],
			ModTime: info.ModTime(),
		}
		if board == BoardMain {
			mains = append(mains, file)
		} else {
			// Last rear file wins for a duplicated version; in
			// practice each version appears once per board.
			rears[file.Version] = file
		}
	}

	if !mainSeen {
		return nil, &MissingFirmwareError{Dir: s.dir, Board: BoardMain}
	}
	if !rearSeen {
		return nil, &MissingFirmwareError{Dir: s.dir, Board: BoardRear}
	}

	// Pair by exact version string. A main build with no rear
	// counterpart never becomes an update candidate; builds differing
	// only in a pre-release tag do not match.
	var pairs []models.FirmwarePair
	for _, main := range mains {
		rear, ok := rears[main.Version]
		if !ok {
			s.logger.Debugf("No rear counterpart for %s (v%s)", filepath.Base(main.Path), main.Version)
			continue
		}
		pairs = append(pairs, models.FirmwarePair{
			Version: main.Version,
			Main:    main,
			Rear:    rear,
		})
	}

	if len(pairs) == 0 {
		return nil, &VersionMismatchError{Dir: s.dir}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].ModTime().After(pairs[j].ModTime())
	})

	return pairs, nil
}

// Select returns the pair for an explicitly requested version string.
func (s *Scanner) Select(version string) (models.FirmwarePair, error) {
	pairs, err := s.Scan()
	if err != nil {
		return models.FirmwarePair{}, err
	}
	available := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if pair.Version == version {
			return pair, nil
		}
		available = append(available, pair.Version)
	}
	return models.FirmwarePair{}, &FirmwareNotFoundError{Version: version, Available: available}
}

// PairFromFiles builds a pair directly from two explicit file paths,
// for CLI invocations that name the firmware instead of scanning. The
// two files must parse to the same version.
func PairFromFiles(mainPath, rearPath string) (models.FirmwarePair, error) {
	main, err := fileFromPath(mainPath, BoardMain)
	if err != nil {
		return models.FirmwarePair{}, err
	}
	rear, err := fileFromPath(rearPath, BoardRear)
	if err != nil {
		return models.FirmwarePair{}, err
	}
	if main.Version != rear.Version {
		return models.FirmwarePair{}, &VersionMismatchError{Dir: filepath.Dir(mainPath)}
	}
	return models.FirmwarePair{Version: main.Version, Main: main, Rear: rear}, nil
}

func fileFromPath(path, board string) (models.FirmwareFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.FirmwareFile{}, &ConfigurationError{Dir: path, Err: err}
	}
	m := versionPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return models.FirmwareFile{}, fmt.Errorf("no version in firmware filename %s", filepath.Base(path))
	}
	return models.FirmwareFile{
		Path:    path,
		Board:   board,
		Version: m[1],
		ModTime: info.ModTime(),
	}, nil
}

// LoadImages reads both members of a pair into memory. The orchestrator
// loads a pair once and reuses the bytes across every device in a batch.
func LoadImages(pair models.FirmwarePair) (mainImage, rearImage []byte, err error) {
	mainImage, err = os.ReadFile(pair.Main.Path)
	if err != nil {
		return nil, nil, err
	}
	rearImage, err = os.ReadFile(pair.Rear.Path)
	if err != nil {
		return nil, nil, err
	}
	return mainImage, rearImage, nil
}
