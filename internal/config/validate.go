package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// ValidationError lists every invalid option of a Config, keyed by YAML name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+e.Fields[name])
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report YAML names so messages match the run file and flags.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	v.RegisterValidation("single_char", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == `\t` || utf8.RuneCountInString(s) == 1
	})

	return v
}

// Validate checks the options and the filesystem paths they name.
func (c *Config) Validate() error {
	fields := make(map[string]string)

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, e := range verrs {
			fields[e.Field()] = friendlyMessage(e)
		}
	}

	if c.InputRoot != "" {
		info, err := os.Stat(c.InputRoot)
		switch {
		case err != nil:
			fields["input"] = "does not exist"
		case !info.IsDir():
			fields["input"] = "is not a directory"
		}
	}

	if c.OutputRoot != "" {
		if problem := outputProblem(c.OutputRoot); problem != "" {
			fields["output"] = problem
		}
	}

	if c.InputRoot != "" && c.OutputRoot != "" && samePath(c.InputRoot, c.OutputRoot) {
		fields["output"] = "must differ from input"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "single_char":
		return "must be a single character"
	default:
		return fmt.Sprintf("is invalid (%s)", e.Tag())
	}
}

// outputProblem says why files cannot be written under root, or returns ""
// when they can. A root that does not exist yet is judged by its nearest
// existing ancestor, which must be a writable directory.
func outputProblem(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "is not a valid path"
	}

	dir := abs
	for {
		info, err := os.Stat(dir)
		if err == nil {
			if info.IsDir() {
				break
			}
			if dir == abs {
				return "is not a directory"
			}
			return fmt.Sprintf("cannot be created: %s is not a directory", dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "cannot be created"
		}
		dir = parent
	}

	probe, err := os.CreateTemp(dir, ".repopulator-*")
	if err != nil {
		return fmt.Sprintf("is not writable: %s", dir)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return ""
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
