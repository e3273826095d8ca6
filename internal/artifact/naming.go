package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/prism/internal/model"
)

// ErrNotArtifactName is returned when a file name does not follow the
// artifact naming scheme.
var ErrNotArtifactName = errors.New("not an artifact file name")

// stemPattern matches "{date}_Form{N}-{wid}_{seq}_{side}".
var stemPattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})_Form(\d)-(\d{10})_(\d+)_(front|back)$`)

// StemInfo is the parsed form of an artifact stem.
type StemInfo struct {
	Request  model.DocumentRequest
	Sequence int
	Side     model.Side
}

// Stem rebuilds the stem string.
func (s StemInfo) Stem() string {
	return s.Request.Stem(s.Sequence, s.Side)
}

// ParseStem parses a stem or artifact file name. Directory components,
// the REDACTED_/OCR_ prefixes and the extension are ignored.
func ParseStem(name string) (StemInfo, error) {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimPrefix(base, RedactedPrefix)
	base = strings.TrimPrefix(base, OCRPrefix)

	m := stemPattern.FindStringSubmatch(base)
	if m == nil {
		return StemInfo{}, fmt.Errorf("%w: %s", ErrNotArtifactName, name)
	}

	date, err := time.Parse(model.DateLayout, m[1])
	if err != nil {
		return StemInfo{}, fmt.Errorf("%w: %s: %v", ErrNotArtifactName, name, err)
	}
	form, err := model.ParseFormType(m[2])
	if err != nil {
		return StemInfo{}, fmt.Errorf("%w: %s: %v", ErrNotArtifactName, name, err)
	}
	wid, err := model.ParseWID(m[3])
	if err != nil {
		return StemInfo{}, fmt.Errorf("%w: %s: %v", ErrNotArtifactName, name, err)
	}
	seq, err := strconv.Atoi(m[4])
	if err != nil || seq < 1 {
		return StemInfo{}, fmt.Errorf("%w: %s: bad sequence", ErrNotArtifactName, name)
	}
	var side model.Side
	if err := side.UnmarshalText([]byte(m[5])); err != nil {
		return StemInfo{}, fmt.Errorf("%w: %s: %v", ErrNotArtifactName, name, err)
	}

	return StemInfo{
		Request:  model.NewDocumentRequest(wid, form, date),
		Sequence: seq,
		Side:     side,
	}, nil
}

// NextSequenceIndex returns the zero-based sequence index the next page of
// req should use so that no RawArtifact already in dir is reused. For a
// request with no prior scans today it returns 0.
func NextSequenceIndex(dir string, req model.DocumentRequest) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	prefix := req.Prefix() + "_"
	highest := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := ParseStem(e.Name())
		if err != nil {
			continue
		}
		if info.Sequence > highest {
			highest = info.Sequence
		}
	}
	return highest, nil
}
