package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/daimatz/classasm/pkg/bytecode"
	"github.com/daimatz/classasm/pkg/classdesc"
	"github.com/daimatz/classasm/pkg/classfile"
	"github.com/daimatz/classasm/pkg/jar"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	var set Config
	var configPath string

	flags := pflag.NewFlagSet("classasm", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVarP(&set.Out, "out", "o", ".", "directory to write class files under")
	flags.StringVar(&set.Jar, "jar", "", "write a jar file instead of a directory")
	flags.IntVarP(&set.Workers, "workers", "j", 0, "classes assembled in parallel (0: one per CPU)")
	flags.BoolVar(&set.Verify, "verify", false, "re-read every written class")
	flags.BoolVar(&set.Digest, "digest", false, "print the BLAKE3 digest of every class")
	flags.StringVar(&set.Bootstrap, "bootstrap", "", "jar or jmod resolving platform superclasses (default: java.base.jmod)")
	flags.StringVar(&set.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&configPath, "config", "", "YAML file with default settings")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: classasm [flags] desc.yaml...\n\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return fmt.Errorf("no class descriptions given")
	}

	cfg := defaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = loadConfig(configPath); err != nil {
			return err
		}
	}
	applyFlags(&cfg, flags, set)

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: stderr, NoColor: true}).
		Level(level).
		With().Timestamp().Logger()

	var classes []*bytecode.ClassFile
	for _, path := range flags.Args() {
		loaded, err := classdesc.Load(path)
		if err != nil {
			return err
		}
		log.Debug().Str("file", path).Int("classes", len(loaded)).Msg("loaded descriptions")
		classes = append(classes, loaded...)
	}

	assembler := bytecode.NewAssembler(bytecode.WithLogger(log))
	out, err := assembler.AssembleAll(classes, cfg.Workers)
	if err != nil {
		if merr, ok := err.(*multierror.Error); ok {
			for _, e := range merr.Errors {
				log.Error().Err(e).Msg("assembly failed")
			}
		}
		return fmt.Errorf("%d of %d classes failed to assemble", countErrors(err), len(classes))
	}

	names := make([]string, len(classes))
	for i, cf := range classes {
		names[i] = cf.Name()
	}

	if cfg.Jar != "" {
		err = writeJarFile(cfg.Jar, names, out)
	} else {
		err = writeDir(cfg.Out, names, out)
	}
	if err != nil {
		return err
	}
	log.Info().Int("classes", len(out)).Msg("assembled")

	if cfg.Digest {
		for i, data := range out {
			sum := jar.Digest(data)
			fmt.Fprintf(stdout, "%s  %s.class\n", hex.EncodeToString(sum[:]), names[i])
		}
	}

	if cfg.Verify {
		bootstrap := cfg.Bootstrap
		if bootstrap == "" {
			bootstrap = findBootstrap()
		}
		if err := verify(log, cfg, bootstrap, names); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		log.Info().Int("classes", len(names)).Msg("verified")
	}
	return nil
}

func countErrors(err error) int {
	if merr, ok := err.(*multierror.Error); ok {
		return len(merr.Errors)
	}
	return 1
}

// writeJarFile writes the jar at path. On failure nothing is left there.
func writeJarFile(path string, names []string, out [][]byte) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	jw := jar.NewWriter(f)
	jw.SetMainAttribute("Created-By", "classasm")
	for i, data := range out {
		if err := jw.AddClass(names[i], data); err != nil {
			return err
		}
	}
	return jw.Close()
}

func writeDir(dir string, names []string, out [][]byte) error {
	for i, data := range out {
		rel := filepath.FromSlash(names[i]) + ".class"
		if !filepath.IsLocal(rel) {
			return fmt.Errorf("class %s would be written outside %s", names[i], dir)
		}
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

// verify reloads every written class and checks that its superclass can be
// found among the written classes or in the bootstrap archive.
func verify(log zerolog.Logger, cfg Config, bootstrap string, names []string) error {
	var parent jar.ClassLoader
	if bootstrap != "" {
		parent = jar.NewArchiveLoader(bootstrap)
	} else {
		log.Warn().Msg("no bootstrap archive; skipping platform superclass checks")
	}

	var loader jar.ClassLoader
	if cfg.Jar != "" {
		archive := jar.NewArchiveLoader(cfg.Jar)
		if err := archive.VerifyDigests(); err != nil {
			return err
		}
		loader = jar.Chain{archive, parent}
	} else {
		loader = jar.NewDirLoader(cfg.Out, parent)
	}

	written := make(map[string]bool, len(names))
	for _, name := range names {
		written[name] = true
	}

	var result *multierror.Error
	for _, name := range names {
		cf, err := loader.LoadClass(name)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		for _, m := range cf.Methods {
			if m.Code == nil {
				continue
			}
			if err := classfile.VerifyConstantOperands(cf.ConstantPool, m.Code.Code); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s.%s%s: %w", name, m.Name, m.Descriptor, err))
			}
		}
		super := cf.SuperClassName()
		if super == "" || written[super] || parent == nil {
			continue
		}
		if _, err := loader.LoadClass(super); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: superclass %s: %w", name, super, err))
		}
	}
	return result.ErrorOrNil()
}
