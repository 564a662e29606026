package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = func(cfg *Config) error {
	return newValidator().check(cfg)
}

type configValidator struct {
	v *validator.Validate
}

func newValidator() *configValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &configValidator{v: v}
}

// check runs struct-tag validation, then the cross-field and filesystem rules.
func (cv *configValidator) check(cfg *Config) error {
	if err := cv.v.Struct(cfg); err != nil {
		return formatValidationErrors(err)
	}

	for _, field := range []struct{ name, value string }{
		{"corpus", cfg.Corpus}, {"corpus_sl", cfg.CorpusSL}, {"corpus_tl", cfg.CorpusTL},
		{"lang_data", cfg.LangData}, {"tl_model", cfg.TLModel}, {"irstlm_dir", cfg.IRSTLMDir},
	} {
		if envVarPattern.MatchString(field.value) {
			matches := envVarPattern.FindStringSubmatch(field.value)
			return fmt.Errorf("%s: environment variable ${%s} is not set", field.name, matches[1])
		}
	}

	if cfg.Parallel() || cfg.TLModel == "" {
		// Parallel runs tag it; non-parallel runs build the language model from it.
		if cfg.CorpusTL == "" {
			return fmt.Errorf("corpus_tl is required")
		}
	}
	if !cfg.Parallel() && cfg.TLModel == "" && cfg.IRSTLMDir == "" {
		return fmt.Errorf("irstlm_dir is required to build a language model when tl_model is not set")
	}

	if err := requireFile("corpus_sl", cfg.CorpusSL); err != nil {
		return err
	}
	if cfg.CorpusTL != "" {
		if err := requireFile("corpus_tl", cfg.CorpusTL); err != nil {
			return err
		}
	}
	if cfg.TLModel != "" {
		if err := requireFile("tl_model", cfg.TLModel); err != nil {
			return err
		}
	}
	if err := requireDir("lang_data", cfg.LangData); err != nil {
		return err
	}
	return nil
}

func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if ns := fe.Namespace(); strings.Count(ns, ".") > 1 {
			field = strings.ToLower(ns[strings.Index(ns, ".")+1:])
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "gt", "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be %s %s (got %v)", field, comparison(fe.Tag()), fe.Param(), fe.Value()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s (got %q)", field, strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value()))
		case "excludesall":
			msgs = append(msgs, fmt.Sprintf("%s must not contain any of %q", field, fe.Param()))
		case "nefield":
			msgs = append(msgs, fmt.Sprintf("%s must differ from %s", field, strings.ToLower(fe.Param())))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func comparison(tag string) string {
	if tag == "gt" {
		return ">"
	}
	return ">="
}

func requireFile(field, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: cannot access %s: %w", field, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s: %s is a directory", field, path)
	}
	return nil
}

func requireDir(field, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: cannot access %s: %w", field, path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %s is not a directory", field, path)
	}
	return nil
}
