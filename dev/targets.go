//go:build targ

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/akedrou/textdiff"
	"github.com/toejough/go-reorder"
	"github.com/toejough/targ"
	"github.com/toejough/targ/file"
	"github.com/toejough/targ/sh"
)

// Build builds the local mockcpp binary.
func Build() error {
	fmt.Println("Building mockcpp...")

	if err := os.MkdirAll("bin", 0o755); err != nil {
		return fmt.Errorf("failed to create bin directory: %w", err)
	}

	return sh.Run("go", "build", "-o", "bin/mockcpp", "./mockcpp")
}

// Check runs all checks & fixes on the code, in order of correctness.
func Check() error {
	fmt.Println("Checking...")

	return targ.Deps(
		Tidy,          // clean up the module dependencies
		FixImports,    // fix imports to remove unused ones
		ReorderDecls,  // put declarations in conventional order
		CheckCoverage, // does our code work?
		CheckFixtures, // do the fixtures still generate cleanly?
		Lint,
	)
}

// CheckCoverage checks that function coverage meets the minimum threshold.
func CheckCoverage() error {
	fmt.Println("Checking coverage...")

	if err := targ.Deps(Test); err != nil {
		return err
	}

	out, err := output("go", "tool", "cover", "-func=coverage.out")
	if err != nil {
		return err
	}

	var linesAndCoverage []lineAndCoverage

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if strings.Contains(line, "main.go") || strings.Contains(line, "total:") {
			continue
		}

		percent, err := strconv.ParseFloat(percentPattern.FindString(line), 64)
		if err != nil {
			return fmt.Errorf("unreadable coverage line %q: %w", line, err)
		}

		linesAndCoverage = append(linesAndCoverage, lineAndCoverage{line, percent})
	}

	if len(linesAndCoverage) == 0 {
		return errors.New("no coverage data")
	}

	slices.SortStableFunc(linesAndCoverage, func(a, b lineAndCoverage) int {
		switch {
		case a.coverage < b.coverage:
			return -1
		case a.coverage > b.coverage:
			return 1
		default:
			return 0
		}
	})

	for _, lc := range linesAndCoverage {
		fmt.Println(lc.line)
	}

	lowest := linesAndCoverage[0]
	if lowest.coverage < minimumCoverage {
		return fmt.Errorf("function coverage was less than the limit of %.1f:\n  %s", minimumCoverage, lowest.line)
	}

	return nil
}

// CheckFixtures generates mocks for the test fixture headers into a scratch directory, so a header
// the tool can no longer handle fails the check.
func CheckFixtures() error {
	fmt.Println("Generating fixture mocks...")

	if err := targ.Deps(Build); err != nil {
		return err
	}

	scratch, err := os.MkdirTemp("", "mockcpp-fixtures-")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	return sh.Run(filepath.Join("bin", "mockcpp"), "--no-cache", "--dir", scratch, "mockcpp/run/testdata/*.hpp")
}

// CheckForFail runs all checks on the code for determining whether any fail.
func CheckForFail() error {
	fmt.Println("Checking...")

	// Checks from fastest to slowest
	return targ.Deps(
		ReorderDeclsCheck,
		LintForFail,
		TestForFail,
		CheckFixtures,
		CheckCoverage,
	)
}

// Clean cleans up the dev env.
func Clean() {
	fmt.Println("Cleaning...")

	for _, path := range []string{"bin", "coverage.out", filepath.Join("mockcpp", ".mockcpp")} {
		_ = os.RemoveAll(path)
	}
}

// FixImports fixes all imports in the codebase.
func FixImports() error {
	fmt.Println("Fixing imports...")
	return sh.Run("goimports", "-w", ".")
}

// Fuzz runs every fuzz target for a short while.
func Fuzz() error {
	fmt.Println("Running fuzz tests...")

	for _, target := range fuzzTargets {
		err := sh.Run("go", "test", target.pkg, "-run=^$", "-fuzz=^"+target.name+"$", "-fuzztime=30s")
		if err != nil {
			return fmt.Errorf("%s: %w", target.name, err)
		}
	}

	return nil
}

// Lint lints the codebase.
func Lint() error {
	fmt.Println("Linting...")
	return sh.Run("golangci-lint", "run", "-c", "dev/golangci.toml")
}

// LintForFail lints the codebase purely to find out whether anything fails.
func LintForFail() error {
	fmt.Println("Linting to check for overall pass/fail...")

	return sh.Run(
		"golangci-lint", "run",
		"-c", "dev/golangci.toml",
		"--fix=false",
		"--max-issues-per-linter=1",
		"--max-same-issues=1",
		"--allow-parallel-runners",
	)
}

// Mutate runs the mutation tests.
func Mutate() error {
	fmt.Println("Running mutation tests...")

	if err := targ.Deps(TestForFail); err != nil {
		return err
	}

	return sh.Run(
		"go",
		"test",
		"-timeout=6000s",
		"-tags=mutation",
		"-ooze.v",
		"./dev/...",
		"-run=TestMutation",
	)
}

// ReorderDecls reorders declarations in Go files per conventions.
func ReorderDecls() error {
	fmt.Println("Reordering declarations...")

	files, err := goSources()
	if err != nil {
		return err
	}

	reorderedCount := 0

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		if isGenerated(content) {
			continue
		}

		reordered, err := reorder.Source(string(content))
		if err != nil {
			fmt.Printf("Warning: failed to reorder %s: %v\n", file, err)

			continue
		}

		if string(content) != reordered {
			err = os.WriteFile(file, []byte(reordered), 0o600)
			if err != nil {
				return fmt.Errorf("failed to write %s: %w", file, err)
			}

			fmt.Printf("  Reordered: %s\n", file)
			reorderedCount++
		}
	}

	fmt.Printf("Reordered %d file(s).\n", reorderedCount)

	return nil
}

// ReorderDeclsCheck reports files whose declarations are out of order without modifying them.
func ReorderDeclsCheck() error {
	fmt.Println("Checking declaration order...")

	files, err := goSources()
	if err != nil {
		return err
	}

	outOfOrderFiles := 0
	filesProcessed := 0

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		if isGenerated(content) {
			continue
		}

		sectionOrder, err := reorder.AnalyzeSectionOrder(string(content))
		if err != nil {
			fmt.Printf("Warning: failed to analyze %s: %v\n", file, err)

			continue
		}

		filesProcessed++

		reordered, err := reorder.Source(string(content))
		if err != nil {
			fmt.Printf("Warning: failed to reorder %s: %v\n", file, err)

			continue
		}

		if string(content) == reordered {
			continue
		}

		outOfOrderFiles++

		fmt.Printf("\n%s:\n", file)
		fmt.Println("  Current order:")

		var outOfPlace []string

		for i, section := range sectionOrder.Sections {
			note := ""

			if section.Expected != i+1 {
				note = fmt.Sprintf(" <- should be #%d", section.Expected)
				outOfPlace = append(outOfPlace, fmt.Sprintf("%s (at #%d, should be #%d)", section.Name, i+1, section.Expected))
			}

			fmt.Printf("    %d. %-24s%s\n", i+1, section.Name, note)
		}

		if len(outOfPlace) > 0 {
			fmt.Printf("  Sections out of place: %s\n", strings.Join(outOfPlace, ", "))
		}

		diff := textdiff.Unified(file+" (current)", file+" (reordered)", string(content), reordered)
		if diff != "" {
			fmt.Printf("\n%s\n", diff)
		}
	}

	if outOfOrderFiles > 0 {
		fmt.Printf("\n%d file(s) need reordering (out of %d processed). Run 'targ reorder-decls' to fix.\n",
			outOfOrderFiles, filesProcessed)

		return fmt.Errorf("%d file(s) need reordering", outOfOrderFiles)
	}

	fmt.Printf("All files are correctly ordered (%d files processed).\n", filesProcessed)

	return nil
}

// Test runs the unit tests.
func Test() error {
	fmt.Println("Running unit tests...")

	// Use -count=1 to disable caching so coverage is regenerated
	return sh.Run(
		"go",
		"test",
		"-timeout=2m",
		"-race",
		"-count=1",
		"-coverprofile=coverage.out",
		"-coverpkg=./mockcpp/...",
		"-cover",
		"./...",
	)
}

// TestForFail runs the unit tests purely to find out whether any fail.
func TestForFail() error {
	fmt.Println("Running unit tests for overall pass/fail...")

	return sh.Run(
		"go",
		"test",
		"-timeout=30s",
		"./...",
		"-failfast",
	)
}

// Tidy tidies up go.mod.
func Tidy() error {
	fmt.Println("Tidying go.mod...")
	return sh.Run("go", "mod", "tidy")
}

// Watch re-runs Check whenever files change.
func Watch(ctx context.Context) error {
	fmt.Println("Watching...")

	return file.Watch(ctx, []string{"**/*.go", "**/*.hpp", "**/*.json"}, file.WatchOptions{}, func(changes file.ChangeSet) error {
		if !hasRelevantChanges(changes) {
			return nil
		}

		fmt.Println("Change detected...")

		targ.ResetDeps() // Clear execution cache so targets run again

		err := Check()
		if err != nil {
			fmt.Println("continuing to watch after check failure (see errors above)")
		} else {
			fmt.Println("continuing to watch after all checks passed!")
		}

		return nil // Don't stop watching on error
	})
}

type fuzzTarget struct {
	pkg  string
	name string
}

type lineAndCoverage struct {
	line     string
	coverage float64
}

const minimumCoverage = 80.0

//nolint:gochecknoglobals // fixed tables
var (
	fuzzTargets = []fuzzTarget{
		{pkg: "./mockcpp/run/1_lex", name: "FuzzJoin"},
		{pkg: "./mockcpp/run/5_generate", name: "FuzzGenerate"},
	}
	generatedPattern = regexp.MustCompile(`(?m)^// Code generated .* DO NOT EDIT\.$`)
	percentPattern   = regexp.MustCompile(`\d+\.\d`)
	reorderRoots     = []string{"mockcpp", "dev"}
)

// hasRelevantChanges ignores the tool's own cache and build output.
func hasRelevantChanges(changes file.ChangeSet) bool {
	for _, path := range slices.Concat(changes.Added, changes.Removed, changes.Modified) {
		slashed := filepath.ToSlash(path)
		if strings.Contains(slashed, "/.mockcpp/") || strings.HasPrefix(slashed, "bin/") {
			continue
		}

		return true
	}

	return false
}

// goSources lists the Go files of the tool and of the dev targets, skipping hidden directories and
// header fixtures.
func goSources() ([]string, error) {
	var files []string

	for _, root := range reorderRoots {
		err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if entry.IsDir() {
				if path != root && (strings.HasPrefix(entry.Name(), ".") || entry.Name() == "testdata") {
					return filepath.SkipDir
				}

				return nil
			}

			if strings.HasSuffix(path, ".go") {
				files = append(files, path)
			}

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to find Go files under %s: %w", root, err)
		}
	}

	return files, nil
}

// isGenerated reports whether the file carries the standard generated-code marker.
func isGenerated(content []byte) bool {
	return generatedPattern.Match(content)
}

func output(command string, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd := exec.Command(command, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = buf
	cmd.Stderr = os.Stderr
	err := cmd.Run()

	return strings.TrimSuffix(buf.String(), "\n"), err
}
