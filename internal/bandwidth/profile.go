// Relay bandwidth shaping driven by a profile file of per-node rates
package bandwidth

import (
	"bufio"
	"fmt"
	"os"
	"pivotrepair/internal/global"
	"slices"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// Reads profile entries one line at a time. Column 0 is the replacement node rate, column i is node i.
type Profile struct {
	Namespace []string
	path      string

	mu      sync.Mutex
	file    *os.File
	scanner *bufio.Scanner
	current []uint64 // bytes per second, 0 = unlimited
	line    int
}

func NewProfile(namespace []string) (new *Profile) {
	new = &Profile{
		Namespace: slices.Concat(namespace, []string{global.NSBandwidth}),
	}
	return
}

// Opens path (or reopens it from the start)
func (profile *Profile) Open(path string) (err error) {
	profile.mu.Lock()
	defer profile.mu.Unlock()

	if profile.file != nil {
		_ = profile.file.Close()
		profile.file = nil
		profile.scanner = nil
	}

	file, err := os.Open(path)
	if err != nil {
		err = fmt.Errorf("failed to open bandwidth profile: %w", err)
		return
	}
	profile.path = path
	profile.file = file
	profile.scanner = bufio.NewScanner(file)
	profile.current = nil
	profile.line = 0
	return
}

// Advances to the next entry. Blank lines and '#' comments are skipped.
func (profile *Profile) LoadNext() (err error) {
	profile.mu.Lock()
	defer profile.mu.Unlock()

	if profile.scanner == nil {
		err = fmt.Errorf("bandwidth profile not opened")
		return
	}

	for profile.scanner.Scan() {
		profile.line++
		text := strings.TrimSpace(profile.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var entry []uint64
		entry, err = parseEntry(text)
		if err != nil {
			err = fmt.Errorf("%s line %d: %w", profile.path, profile.line, err)
			return
		}
		profile.current = entry
		return
	}

	err = profile.scanner.Err()
	if err != nil {
		err = fmt.Errorf("failed reading bandwidth profile: %w", err)
		return
	}
	err = fmt.Errorf("bandwidth profile %s has no more entries", profile.path)
	return
}

// Rate for a node from the current entry. Replacement nodes use column 0.
func (profile *Profile) Rate(nodeID int64, replaced bool) (bytesPerSec uint64, err error) {
	profile.mu.Lock()
	defer profile.mu.Unlock()

	if profile.current == nil {
		err = fmt.Errorf("no bandwidth entry loaded")
		return
	}

	column := nodeID
	if replaced {
		column = 0
	}
	if column < 0 || column >= int64(len(profile.current)) {
		err = fmt.Errorf("bandwidth entry has %d columns, node %d not covered", len(profile.current), column)
		return
	}
	bytesPerSec = profile.current[column]
	return
}

func (profile *Profile) Close() (err error) {
	profile.mu.Lock()
	defer profile.mu.Unlock()

	if profile.file == nil {
		return
	}
	err = profile.file.Close()
	profile.file = nil
	profile.scanner = nil
	return
}

func parseEntry(text string) (entry []uint64, err error) {
	for _, field := range strings.Fields(text) {
		var rate uint64
		rate, err = humanize.ParseBytes(field)
		if err != nil {
			err = fmt.Errorf("invalid rate %q: %w", field, err)
			return
		}
		entry = append(entry, rate)
	}
	return
}
