package lineage

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
)

// DefaultBlameTimeout bounds one blame subprocess.
const DefaultBlameTimeout = 30 * time.Second

// Attribution names the commit that last touched a line.
type Attribution struct {
	Commit gitlib.Hash
	Author gitlib.Signature
}

// Blamer maps the 1-based line numbers of path at rev to their attributions.
// On error callers treat the result as empty.
type Blamer interface {
	Blame(ctx context.Context, repo *gitlib.Repository, rev gitlib.Hash, path string) (map[int]Attribution, error)
}

// NativeBlamer blames in-process through libgit2.
type NativeBlamer struct{}

// Blame implements Blamer.
func (NativeBlamer) Blame(_ context.Context, repo *gitlib.Repository, rev gitlib.Hash, path string) (map[int]Attribution, error) {
	lines, err := repo.BlameFile(rev, path)
	if err != nil {
		return nil, err
	}

	out := make(map[int]Attribution, len(lines))
	for _, line := range lines {
		out[line.Line] = Attribution{Commit: line.Commit, Author: line.Author}
	}

	return out, nil
}

// ProcessBlamer runs `git blame --porcelain` in the repository directory.
type ProcessBlamer struct {
	// Binary is the git executable. Defaults to "git".
	Binary string
	// Timeout bounds each invocation. Defaults to DefaultBlameTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Blame implements Blamer.
func (b ProcessBlamer) Blame(ctx context.Context, repo *gitlib.Repository, rev gitlib.Hash, path string) (map[int]Attribution, error) {
	binary := b.Binary
	if binary == "" {
		binary = "git"
	}

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultBlameTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, binary, "blame", "--porcelain", rev.String(), "--", path)
	cmd.Dir = repo.Path()
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("git blame %s: %w", path, ctxErr)
	}

	if err != nil {
		return nil, fmt.Errorf("git blame %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}

	return ParsePorcelain(&stdout, b.logger())
}

func (b ProcessBlamer) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}

	return slog.Default()
}

var porcelainHeader = regexp.MustCompile(`^([0-9a-f]{40}) (\d+) (\d+)(?: (\d+))?$`)

// ParsePorcelain reads `git blame --porcelain` output. Malformed entry headers
// are logged and the entry they introduce is dropped.
func ParsePorcelain(r io.Reader, logger *slog.Logger) (map[int]Attribution, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		authors = map[gitlib.Hash]*gitlib.Signature{}
		out     = map[int]Attribution{}
		current gitlib.Hash
		line    int
		valid   bool
		inEntry bool
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for lineNo := 1; scanner.Scan(); lineNo++ {
		text := scanner.Text()

		if strings.HasPrefix(text, "\t") {
			if valid {
				out[line] = Attribution{Commit: current, Author: *authors[current]}
			}

			inEntry, valid = false, false

			continue
		}

		if !inEntry {
			inEntry = true

			m := porcelainHeader.FindStringSubmatch(text)
			if m == nil {
				logger.Warn("skipping malformed blame header", "line", lineNo, "text", text)

				continue
			}

			final, err := strconv.Atoi(m[3])
			if err != nil {
				logger.Warn("skipping blame header with bad line number", "line", lineNo, "text", text)

				continue
			}

			current = gitlib.NewHash(m[1])
			line = final
			valid = true

			if authors[current] == nil {
				authors[current] = &gitlib.Signature{}
			}

			continue
		}

		if !valid {
			continue
		}

		key, value, _ := strings.Cut(text, " ")
		sig := authors[current]

		switch key {
		case "author":
			sig.Name = value
		case "author-mail":
			sig.Email = strings.TrimSuffix(strings.TrimPrefix(value, "<"), ">")
		case "author-time":
			epoch, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				logger.Warn("skipping bad blame author-time", "line", lineNo, "text", text)

				continue
			}

			sig.When = time.Unix(epoch, 0)
		}
	}

	err := scanner.Err()
	if err != nil {
		return out, fmt.Errorf("read blame output: %w", err)
	}

	return out, nil
}
