package nrpc

import (
	"context"
	"regexp"
	"strings"
)

// Schema is the validation capability attached to a Contract.  Validate
// returns either a (possibly transformed) value or a list of issues.  The
// error return is for failures of the validator itself.
type Schema interface {
	Validate(ctx context.Context, value any) (ValidationResult, error)
}

// ValidationResult is returned by Schema.Validate.  When Issues is empty,
// Value is the validated value.
type ValidationResult struct {
	Value  any
	Issues []Issue
}

// SchemaFunc adapts a function into a Schema.
type SchemaFunc func(ctx context.Context, value any) (ValidationResult, error)

func (f SchemaFunc) Validate(ctx context.Context, value any) (ValidationResult, error) {
	return f(ctx, value)
}

// Coercer is an optional Schema capability.  Form and query decoding
// produce strings; Coerce converts them to the types the schema
// declares (for example "1" to 1 for a number field).
type Coercer interface {
	Coerce(value any) any
}

// RouteOptions are the routing parts of a Contract.
type RouteOptions struct {
	Method      string
	Path        string
	Summary     string
	Description string
	Deprecated  bool
	Tags        []string
}

// Contract is the static description of one procedure.  Contract
// methods have value receivers and return modified copies.
type Contract struct {
	Method      string
	Path        string
	Summary     string
	Description string
	Deprecated  bool
	Tags        []string

	InputSchema    Schema
	InputExample   any
	InputExamples  map[string]any
	OutputSchema   Schema
	OutputExample  any
	OutputExamples map[string]any
}

// Route replaces the routing metadata.  Method and Path are always
// replaced, even with empty values.  Tags are replaced only when
// provided.
func (c Contract) Route(opts RouteOptions) Contract {
	c.Method = strings.ToUpper(opts.Method)
	c.Path = opts.Path
	if opts.Path != "" {
		c.Path = StandardizePath(opts.Path)
	}
	c.Summary = opts.Summary
	c.Description = opts.Description
	c.Deprecated = opts.Deprecated
	if opts.Tags != nil {
		c.Tags = append([]string(nil), opts.Tags...)
	} else {
		c.Tags = c.cloneTags()
	}
	return c
}

// Prefix prepends prefix to the path.  Contracts without a path are
// returned unchanged.
func (c Contract) Prefix(prefix string) Contract {
	if c.Path == "" || prefix == "" {
		return c
	}
	c.Path = PrefixPath(prefix, c.Path)
	c.Tags = c.cloneTags()
	return c
}

// AddTags appends tags.
func (c Contract) AddTags(tags ...string) Contract {
	if len(tags) == 0 {
		return c
	}
	n := make([]string, 0, len(c.Tags)+len(tags))
	n = append(n, c.Tags...)
	c.Tags = append(n, tags...)
	return c
}

// UnshiftTags prepends tags.
func (c Contract) UnshiftTags(tags ...string) Contract {
	if len(tags) == 0 {
		return c
	}
	n := make([]string, 0, len(c.Tags)+len(tags))
	n = append(n, tags...)
	c.Tags = append(n, c.Tags...)
	return c
}

// Input sets the input schema.  The optional example is recorded for
// documentation.
func (c Contract) Input(schema Schema, example ...any) Contract {
	c.InputSchema = schema
	c.InputExample = nil
	if len(example) > 0 {
		c.InputExample = example[0]
	}
	c.Tags = c.cloneTags()
	return c
}

// Output sets the output schema.
func (c Contract) Output(schema Schema, example ...any) Contract {
	c.OutputSchema = schema
	c.OutputExample = nil
	if len(example) > 0 {
		c.OutputExample = example[0]
	}
	c.Tags = c.cloneTags()
	return c
}

// HTTPMethod is the method to route on, POST when none was declared.
func (c Contract) HTTPMethod() string {
	if c.Method == "" {
		return "POST"
	}
	return c.Method
}

func (c Contract) cloneTags() []string {
	if c.Tags == nil {
		return nil
	}
	return append([]string(nil), c.Tags...)
}

var multiSlash = regexp.MustCompile(`/{2,}`)

// StandardizePath collapses repeated slashes and makes sure the path
// has exactly one leading slash and no trailing slash.
func StandardizePath(path string) string {
	path = multiSlash.ReplaceAllString(path, "/")
	return "/" + strings.Trim(path, "/")
}

// PrefixPath joins a prefix and a path.
func PrefixPath(prefix, path string) string {
	p := StandardizePath(prefix)
	s := StandardizePath(path)
	switch {
	case p == "/":
		return s
	case s == "/":
		return p
	default:
		return p + s
	}
}
