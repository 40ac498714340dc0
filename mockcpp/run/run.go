// Package run implements the main logic for the mockcpp tool in a testable way.
package run

import (
	"context"
	"io"
	"maps"
	"runtime"
	"slices"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	model "github.com/toejough/mockcpp/mockcpp/run/0_model"
	parse "github.com/toejough/mockcpp/mockcpp/run/2_parse"
	qualify "github.com/toejough/mockcpp/mockcpp/run/3_qualify"
	classify "github.com/toejough/mockcpp/mockcpp/run/4_classify"
	generate "github.com/toejough/mockcpp/mockcpp/run/5_generate"
	output "github.com/toejough/mockcpp/mockcpp/run/6_output"
)

// Version is reported by --version and folded into cache signatures.
const Version = "0.3.0"

// Exported variables.
var (
	// ErrCheckFailed marks a --check run that found generated files out of date.
	ErrCheckFailed = errors.New("generated mocks differ from files on disk")
	// ErrDuplicateOutput marks two mocks rendered to the same file.
	ErrDuplicateOutput = errors.New("two mocks render to the same file")
	// ErrNoHeaders marks a header argument that names no file.
	ErrNoHeaders = errors.New("no such header")
)

// Interfaces - Public

// FileSystem abstracts the file operations of a run.
type FileSystem interface {
	CacheFileSystem
	// Glob returns the files matching a doublestar pattern, sorted.
	Glob(pattern string) ([]string, error)
}

// Structs - Private

// cliArgs defines the command-line arguments for the generator.
type cliArgs struct {
	Headers []string `arg:"positional,required" help:"header files or doublestar globs (e.g. include/**/*.hpp)"`
	Dir     string   `arg:"-d,--dir" default:"." help:"directory for generated mocks"`
	Config  string   `arg:"-c,--config" help:"JSONC config file (default mockcpp.jsonc if present)"`
	Expr    string   `arg:"-e,--expr" help:"limit to interfaces whose qualified name matches (e.g. n1::*)"`
	Check   bool     `arg:"--check" help:"compare with files on disk instead of writing"`
	Watch   bool     `arg:"-w,--watch" help:"regenerate when a header changes"`
	Jobs    int      `arg:"-j,--jobs" help:"headers processed in parallel (default: config, then CPUs)"`
	NoCache bool     `arg:"--no-cache" help:"rewrite generated files even when their inputs are unchanged"`
	Verbose bool     `arg:"-v,--verbose" help:"log debug details"`
	JSONLog bool     `arg:"--json-log" help:"log as JSON"`
}

// Version implements go-arg's version hook.
func (cliArgs) Version() string {
	return "mockcpp " + Version
}

// runner holds the settings and collaborators shared by every header of one run.
type runner struct {
	args      cliArgs
	cfg       Config
	fileSys   FileSystem
	out       io.Writer
	logger    *zap.Logger
	generator *generate.Generator
	filter    func(qualifiedName string) bool
	cache     *generationCache
}

// fileResult is what processing one header produced.
type fileResult struct {
	src   []byte
	files []output.File
	mocks []string // qualified mock name per file
	diffs []output.Diff
}

// Functions - Public

// Run executes the mockcpp tool logic: it expands the header arguments, generates a mock for every
// interface in each header and writes (or, with --check, compares) the mock files. Headers are
// processed in parallel and independently; a failing header does not stop the others. The returned
// error combines every per-header failure.
func Run(ctx context.Context, args []string, getEnv func(string) string, fileSys FileSystem, out io.Writer) error {
	parsed, err := parseArgs(args, out)
	if errors.Is(err, errHelpShown) {
		return nil
	}

	if err != nil {
		return err
	}

	synced := lockedOutput(out)
	logger := NewLogger(synced, parsed.Verbose, parsed.JSONLog)

	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig(parsed.Config, getEnv, fileSys)
	if err != nil {
		return err
	}

	filter, err := interfaceFilter(parsed.Expr)
	if err != nil {
		return err
	}

	headers, err := expandHeaders(parsed.Headers, fileSys)
	if err != nil {
		return err
	}

	cache, err := openCache(!parsed.NoCache && !parsed.Check, fileSys)
	if err != nil {
		return err
	}

	r := &runner{
		args:      parsed,
		cfg:       cfg,
		fileSys:   fileSys,
		out:       synced,
		logger:    logger,
		generator: generate.New(cfg.generateOptions()),
		filter:    filter,
		cache:     cache,
	}

	err = r.processAll(ctx, headers)

	if parsed.Watch {
		if err != nil {
			logger.Error("initial generation failed", zap.Error(err))
		}

		return watch(ctx, headers, watchDebounce, logger, r.processAll)
	}

	return err
}

// Functions - Private

// parseArgs parses command-line arguments into cliArgs.
func parseArgs(args []string, out io.Writer) (cliArgs, error) {
	var parsed cliArgs

	parser, err := arg.NewParser(arg.Config{Program: "mockcpp"}, &parsed)
	if err != nil {
		return cliArgs{}, errors.Wrap(err, "failed to create argument parser")
	}

	var cmdArgs []string
	if len(args) > 1 {
		cmdArgs = args[1:]
	}

	err = parser.Parse(cmdArgs)

	switch {
	case errors.Is(err, arg.ErrHelp):
		parser.WriteHelp(out)

		return cliArgs{}, errHelpShown
	case errors.Is(err, arg.ErrVersion):
		_, _ = io.WriteString(out, parsed.Version()+"\n")

		return cliArgs{}, errHelpShown
	case err != nil:
		return cliArgs{}, errors.WithHint(errors.Wrap(err, "failed to parse arguments"), "run mockcpp --help for usage")
	}

	if parsed.Jobs < 0 {
		return cliArgs{}, errors.Newf("--jobs must be positive, got %d", parsed.Jobs)
	}

	return parsed, nil
}

// interfaceFilter compiles an --expr pattern. "::" separates segments, so "n1::*" matches the
// interfaces directly in n1 and "**::I*" any interface whose name starts with I.
func interfaceFilter(expr string) (func(string) bool, error) {
	if expr == "" {
		return func(string) bool { return true }, nil
	}

	pattern := strings.ReplaceAll(expr, "::", "/")
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.Newf("invalid --expr pattern %q", expr)
	}

	return func(qualifiedName string) bool {
		return doublestar.MatchUnvalidated(pattern, strings.ReplaceAll(qualifiedName, "::", "/"))
	}, nil
}

// expandHeaders resolves header arguments to files, expanding doublestar globs. Order follows the
// arguments; duplicates are dropped.
func expandHeaders(patterns []string, fileSys FileSystem) ([]string, error) {
	var headers []string

	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[{") {
			_, err := fileSys.Stat(pattern)
			if err != nil {
				return nil, errors.Mark(errors.Wrapf(err, "%s does not exist", pattern), ErrNoHeaders)
			}

			headers = append(headers, pattern)

			continue
		}

		matches, err := fileSys.Glob(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "expanding %s", pattern)
		}

		if len(matches) == 0 {
			return nil, errors.Mark(errors.Newf("%s matches no files", pattern), ErrNoHeaders)
		}

		headers = append(headers, matches...)
	}

	unique := headers[:0]

	for i, header := range headers {
		if !slices.Contains(headers[:i], header) {
			unique = append(unique, header)
		}
	}

	return unique, nil
}

// processAll runs the pipeline for every header in parallel: every mock is rendered, then output
// paths are claimed in header order, then each header whose files are all its own is written (or,
// with --check, compared). The cache is saved and --check diffs are printed in header order.
func (r *runner) processAll(ctx context.Context, headers []string) error {
	results := make([]fileResult, len(headers))
	errs := make([]error, len(headers))

	r.eachHeader(ctx, headers, errs, func(ctx context.Context, i int) {
		results[i], errs[i] = r.renderFile(ctx, headers[i])
	})

	claimOutputs(headers, results, errs)

	r.eachHeader(ctx, headers, errs, func(_ context.Context, i int) {
		results[i].diffs, errs[i] = r.emitFile(headers[i], results[i])
	})

	var combined error

	for i, err := range errs {
		if err == nil {
			continue
		}

		fields := []zap.Field{zap.String(fieldFile, headers[i]), zap.Error(err)}
		if hints := errors.FlattenHints(err); hints != "" {
			fields = append(fields, zap.String(fieldHint, hints))
		}

		r.logger.Error("generation failed", fields...)

		combined = errors.CombineErrors(combined, err)
	}

	err := r.cache.save(r.fileSys)
	if err != nil {
		r.logger.Warn("cache not saved", zap.Error(err))
	}

	var diffs int

	for _, result := range results {
		for _, diff := range result.diffs {
			r.logger.Warn("generated file differs", zap.String(fieldOutput, diff.Path))
			_, _ = io.WriteString(r.out, diff.Text)
			diffs++
		}
	}

	if diffs > 0 {
		combined = errors.CombineErrors(combined, errors.WithDetailf(ErrCheckFailed, "%d files differ", diffs))
	}

	return combined
}

// eachHeader calls fn in parallel for every header that has not failed yet.
func (r *runner) eachHeader(ctx context.Context, headers []string, errs []error, fn func(context.Context, int)) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.jobs())

	for i := range headers {
		if errs[i] != nil {
			continue
		}

		group.Go(func() error {
			fn(groupCtx, i)

			return nil
		})
	}

	_ = group.Wait()
}

func (r *runner) jobs() int {
	switch {
	case r.args.Jobs > 0:
		return r.args.Jobs
	case r.cfg.Jobs > 0:
		return r.cfg.Jobs
	default:
		return runtime.GOMAXPROCS(0)
	}
}

// renderFile runs the pipeline for one header up to the rendered files, without touching the output
// directory.
func (r *runner) renderFile(ctx context.Context, header string) (fileResult, error) {
	err := ctx.Err()
	if err != nil {
		return fileResult{}, err
	}

	src, err := r.fileSys.ReadFile(header)
	if err != nil {
		return fileResult{}, errors.Wrapf(err, "reading %s", header)
	}

	parsed, err := parse.Parse(header, string(src))
	if err != nil {
		return fileResult{}, withHint(err)
	}

	classified, err := classify.File(qualify.File(parsed))
	if err != nil {
		return fileResult{}, withHint(err)
	}

	result := fileResult{src: src}

	for _, ci := range classified {
		name := ci.Interface.QualifiedName()
		if !r.filter(name) {
			r.logger.Debug("interface skipped", zap.String(fieldInterface, name))

			continue
		}

		r.logger.Info("interface found",
			zap.String(fieldFile, header),
			zap.String(fieldInterface, name),
			zap.Int(fieldMethods, len(ci.Interface.Methods)))

		mock, err := r.generator.Generate(ci)
		if err != nil {
			return fileResult{}, withHint(err)
		}

		opts := r.cfg.outputOptions(r.args.Dir)
		opts.SourcePath = header

		rendered, err := output.Render(mock, opts)
		if err != nil {
			return fileResult{}, errors.Wrapf(err, "rendering %s", mock.QualifiedName())
		}

		for _, file := range rendered {
			r.logger.Debug("mock rendered", zap.String(fieldMock, mock.QualifiedName()), zap.String(fieldOutput, file.Path))
			result.files = append(result.files, file)
			result.mocks = append(result.mocks, mock.QualifiedName())
		}
	}

	return result, nil
}

// emitFile writes the rendered files of one header, or with --check compares them with the files on
// disk. A header that failed to parse or generate never gets here, so it leaves no output; a failed
// write can leave the header's earlier files written.
func (r *runner) emitFile(header string, result fileResult) ([]output.Diff, error) {
	if r.args.Check {
		return output.Check(result.files, r.fileSys)
	}

	for _, file := range result.files {
		signature := CalculateSignature(r.cfg, header, result.src, file.Path)
		if r.cache.fresh(file.Path, signature, r.fileSys) {
			r.logger.Info("file unchanged", zap.String(fieldOutput, file.Path))

			continue
		}

		err := output.Write([]output.File{file}, r.fileSys, r.out)
		if err != nil {
			return nil, err
		}

		r.cache.record(file.Path, signature, header)
	}

	return nil, nil
}

// claimOutputs gives each output path to the first mock rendering it, in header order. A header with
// a mock whose path is already claimed fails as a whole and writes nothing.
func claimOutputs(headers []string, results []fileResult, errs []error) {
	type claim struct{ header, mock string }

	claimed := make(map[string]claim)

	for i, result := range results {
		if errs[i] != nil {
			continue
		}

		var conflicts error

		own := make(map[string]claim)

		for j, file := range result.files {
			owner, taken := claimed[file.Path]
			if !taken {
				owner, taken = own[file.Path]
			}

			if !taken {
				own[file.Path] = claim{header: headers[i], mock: result.mocks[j]}

				continue
			}

			err := errors.Mark(errors.Newf("%s: %s renders to %s, already generated for %s from %s",
				headers[i], result.mocks[j], file.Path, owner.mock, owner.header), ErrDuplicateOutput)
			conflicts = errors.CombineErrors(conflicts, errors.WithHint(err,
				`include the namespace in mock_file_hpp, e.g. "{{.NamespacePath}}/Mock{{.Interface}}.hpp"`))
		}

		if conflicts != nil {
			errs[i] = conflicts

			continue
		}

		maps.Copy(claimed, own)
	}
}

// withHint attaches a remedy to the pipeline errors users can fix in their header.
func withHint(err error) error {
	var (
		parseErr    *parse.Error
		internalErr *generate.InternalError
	)

	switch {
	case errors.As(err, &parseErr) && parseErr.Kind == parse.MissingPureSpecifier:
		return errors.WithHint(err, "mocks are generated for pure virtual methods only; declare the method '= 0'")
	case errors.As(err, &parseErr) && parseErr.Kind == parse.UnsupportedConstruct:
		return errors.WithHint(err,
			"headers may contain namespaces and classes with public pure virtual methods, one public base and a destructor")
	case errors.Is(err, model.ErrDuplicateDeclaration):
		return errors.WithHint(err, "remove one of the two declarations")
	case errors.As(err, &internalErr) && internalErr.Option != "":
		return errors.WithHintf(err, "rename the factory with %s in the config file", factoryConfigKeys[internalErr.Option])
	case errors.Is(err, model.ErrInternalConsistency):
		return errors.WithHint(err, "this is a bug in mockcpp; please report it with the header")
	default:
		return err
	}
}

// unexported variables.
var (
	factoryConfigKeys = map[string]string{
		"CreateName":       "create_name",
		"CreateStrictName": "create_strict_name",
	}
	errHelpShown = errors.New("help shown")
)
