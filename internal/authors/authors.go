// Package authors reads the authors file mapping source user names to git
// identities.
package authors

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/kilupskalvis/tfsgit/internal/errpolicy"
	"github.com/kilupskalvis/tfsgit/internal/models"
	"golang.org/x/text/cases"
)

// lines read `DOMAIN\user = Full Name <email>`
var lineRe = regexp.MustCompile(`^(.+?)\s*=\s*(.+?)\s*<(.*)>\s*$`)

// Mapping is a case-insensitive source user -> author table.
type Mapping struct {
	authors map[string]models.Author
	fold    cases.Caser
}

// NewMapping creates an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{authors: make(map[string]models.Author), fold: cases.Fold()}
}

// Parse reads an authors file. The first entry for a user wins.
func Parse(r io.Reader) (*Mapping, error) {
	m := NewMapping()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		match := lineRe.FindStringSubmatch(line)
		if match == nil || strings.TrimSpace(match[3]) == "" {
			return nil, errpolicy.Configuration(
				fmt.Errorf("invalid format of authors file on line %d", lineNo),
				`Each line must read 'DOMAIN\user = Full Name <email>'`,
			)
		}
		m.Add(match[1], models.Author{Name: match[2], Email: strings.TrimSpace(match[3])})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read authors file: %w", err)
	}
	return m, nil
}

// LoadFile parses the authors file at path.
func LoadFile(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errpolicy.Configuration(
				fmt.Errorf("authors file cannot be found: '%s'", path),
				"Check the authors_file setting")
		}
		return nil, fmt.Errorf("open authors file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Add registers an author unless the user already has one.
func (m *Mapping) Add(user string, author models.Author) {
	key := m.fold.String(strings.TrimSpace(user))
	if _, exists := m.authors[key]; !exists {
		m.authors[key] = author
	}
}

// Lookup returns the author mapped to a source user.
func (m *Mapping) Lookup(user string) (models.Author, bool) {
	if m == nil {
		return models.Author{}, false
	}
	a, ok := m.authors[m.fold.String(user)]
	return a, ok
}

// Len returns the number of mapped users.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.authors)
}
