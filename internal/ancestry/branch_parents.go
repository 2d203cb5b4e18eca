// Package ancestry reads the branch parents file, a user-supplied table of
// branch name -> parent changeset id used where the source server does not
// record where a branch came from.
package ancestry

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/kilupskalvis/tfsgit/internal/errpolicy"
	"golang.org/x/text/cases"
)

// CachedFileName is the name of the cached copy inside the control directory.
const CachedFileName = "tfsgit_branch-parents"

var lineRe = regexp.MustCompile(`^(.+?)\s*=\s*(.+?)\s*$`)

// Store holds the parsed mapping. It is built once per run and passed to
// whoever resolves branch parents.
type Store struct {
	parents  map[string]int
	fold     cases.Caser
	parsed   bool
	needCopy bool
	logger   *slog.Logger
}

// NewStore creates an empty store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		parents: make(map[string]int),
		fold:    cases.Fold(),
		logger:  logger,
	}
}

// Parse reads mappings from r. On error the current mapping is kept.
func (s *Store) Parse(r io.Reader) error {
	parents := make(map[string]int)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}

		m := lineRe.FindStringSubmatch(line)
		if m == nil || strings.TrimSpace(m[1]) == "" || strings.TrimSpace(m[2]) == "" {
			return formatError(lineNo)
		}
		parent, err := strconv.Atoi(strings.TrimSpace(m[2]))
		if err != nil {
			return formatError(lineNo)
		}

		key := s.fold.String(strings.TrimSpace(m[1]))
		if _, exists := parents[key]; !exists {
			parents[key] = parent
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read branch parents: %w", err)
	}

	s.parents = parents
	s.parsed = true
	return nil
}

func formatError(line int) error {
	return errpolicy.Configuration(
		fmt.Errorf("invalid format of branch parents file on line %d", line),
		"Each line must read '<branch name> = <changeset id>'; lines starting with '#' are comments",
	)
}

// Load parses the explicit file when given, otherwise the cached copy in
// gitDir if nothing was parsed yet. Without either the mapping stays empty.
func (s *Store) Load(explicitPath, gitDir string) error {
	if strings.TrimSpace(explicitPath) != "" {
		f, err := os.Open(explicitPath)
		if err != nil {
			if os.IsNotExist(err) {
				return errpolicy.Configuration(
					fmt.Errorf("branch parents file cannot be found: '%s'", explicitPath),
					"Check the branch_parents_file setting")
			}
			return fmt.Errorf("open branch parents file: %w", err)
		}
		defer f.Close()

		s.logger.Debug("reading branch parents file", "path", explicitPath)
		if err := s.Parse(f); err != nil {
			return err
		}
		s.needCopy = true
		return nil
	}

	cached := CachedPath(gitDir)
	if _, err := os.Stat(cached); err != nil {
		s.logger.Debug("no branch parents file used")
		return nil
	}
	if s.parsed {
		return nil
	}

	f, err := os.Open(cached)
	if err != nil {
		return fmt.Errorf("open cached branch parents file: %w", err)
	}
	defer f.Close()

	s.logger.Debug("reading cached branch parents file", "path", cached)
	return s.Parse(f)
}

// CopyToCache stores the explicit file in gitDir so later runs can do without
// it. Failures are logged and otherwise ignored.
func (s *Store) CopyToCache(explicitPath, gitDir string) {
	if !s.needCopy {
		return
	}
	dst := CachedPath(gitDir)
	if err := copyFile(explicitPath, dst); err != nil {
		s.logger.Warn("failed to copy branch parents file", "from", explicitPath, "to", dst, "error", err)
	}
}

// FindBranchParent returns the parent changeset id recorded for branch.
func (s *Store) FindBranchParent(branch string) (int, bool) {
	parent, ok := s.parents[s.fold.String(branch)]
	return parent, ok
}

// Len returns the number of mappings.
func (s *Store) Len() int {
	return len(s.parents)
}

// CachedPath returns the location of the cached copy inside gitDir.
func CachedPath(gitDir string) string {
	return filepath.Join(gitDir, CachedFileName)
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
