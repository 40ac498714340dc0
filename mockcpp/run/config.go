package run

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/muhammadmuzzammil1998/jsonc"
	"github.com/santhosh-tekuri/jsonschema/v6"

	generate "github.com/toejough/mockcpp/mockcpp/run/5_generate"
	output "github.com/toejough/mockcpp/mockcpp/run/6_output"
)

// DefaultConfigName is the configuration file read from the working directory when present.
const DefaultConfigName = "mockcpp.jsonc"

// ConfigEnv names the environment variable that may point at a configuration file.
const ConfigEnv = "MOCKCPP_CONFIG"

// Config is the decoded configuration file. Empty fields keep their defaults.
type Config struct {
	MockFileHpp      string `json:"mock_file_hpp"`
	FileTemplateHpp  string `json:"file_template_hpp"`
	MockFileCpp      string `json:"mock_file_cpp"`
	FileTemplateCpp  string `json:"file_template_cpp"`
	CreateName       string `json:"create_name"`
	CreateStrictName string `json:"create_strict_name"`
	MockPrefix       string `json:"mock_prefix"`
	GuardPrefix      string `json:"guard_prefix"`
	Indent           string `json:"indent"`
	Jobs             int    `json:"jobs"`
}

// ParseConfig decodes JSONC configuration text and validates it against the embedded schema.
func ParseConfig(name string, data []byte) (Config, error) {
	clean := jsonc.ToJSON(data)

	schema, err := compileConfigSchema()
	if err != nil {
		return Config{}, err
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(clean))
	if err != nil {
		return Config{}, errors.Wrapf(err, "decoding %s", name)
	}

	err = schema.Validate(instance)
	if err != nil {
		return Config{}, errors.WithHint(errors.Wrapf(err, "%s is invalid", name),
			"accepted keys: mock_file_hpp, file_template_hpp, mock_file_cpp, file_template_cpp, create_name, "+
				"create_strict_name, mock_prefix, guard_prefix, indent, jobs")
	}

	var cfg Config

	err = json.Unmarshal(clean, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "decoding %s", name)
	}

	return cfg, nil
}

// generateOptions returns the generator options the configuration selects.
func (c Config) generateOptions() generate.Options {
	return generate.Options{
		MockPrefix:       c.MockPrefix,
		CreateName:       c.CreateName,
		CreateStrictName: c.CreateStrictName,
		Indent:           c.Indent,
	}
}

// outputOptions returns the file options the configuration selects, writing into dir.
func (c Config) outputOptions(dir string) output.Options {
	return output.Options{
		Dir:         dir,
		HppName:     c.MockFileHpp,
		HppTemplate: c.FileTemplateHpp,
		CppName:     c.MockFileCpp,
		CppTemplate: c.FileTemplateCpp,
		GuardPrefix: c.GuardPrefix,
	}
}

// loadConfig reads the configuration named on the command line, then the one named by ConfigEnv,
// then DefaultConfigName if it exists. Without any of them the zero Config is returned.
func loadConfig(path string, getEnv func(string) string, fileSys FileSystem) (Config, error) {
	if path == "" {
		path = getEnv(ConfigEnv)
	}

	if path == "" {
		_, err := fileSys.Stat(DefaultConfigName)
		if err != nil {
			return Config{}, nil
		}

		path = DefaultConfigName
	}

	data, err := fileSys.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}

	return ParseConfig(path, data)
}

const configSchemaURL = "mem://mockcpp/config.schema.json"

//go:embed config.schema.json
var configSchemaJSON []byte

// unexported variables.
var (
	compileConfigSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(configSchemaJSON))
		if err != nil {
			return nil, errors.Wrap(err, "decoding config schema")
		}

		compiler := jsonschema.NewCompiler()

		err = compiler.AddResource(configSchemaURL, doc)
		if err != nil {
			return nil, errors.Wrap(err, "registering config schema")
		}

		schema, err := compiler.Compile(configSchemaURL)
		if err != nil {
			return nil, errors.Wrap(err, "compiling config schema")
		}

		return schema, nil
	})
)
