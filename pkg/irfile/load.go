// Package irfile loads translation units from their YAML file form. The
// loader is the boundary to the external front-end: it decodes the file,
// gates on the format version, and resolves every node to the fully typed
// form the lowering pipeline requires. Files that would reach lowering
// with a type hole are rejected here.
package irfile

import (
	"bytes"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/keel-lang/keelc/pkg/ir"
)

// VersionRange is the unit file format range this loader accepts.
const VersionRange = ">= 1.0.0, < 2.0.0"

var versionRange = mustConstraint(VersionRange)

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

type yamlUnit struct {
	IRVersion string         `yaml:"ir_version"`
	Unit      string         `yaml:"unit"`
	Structs   []yamlStruct   `yaml:"structs,omitempty"`
	Externs   []yamlExtern   `yaml:"externs,omitempty"`
	Functions []yamlFunction `yaml:"functions"`
}

type yamlStruct struct {
	Name   string      `yaml:"name"`
	Fields []yamlParam `yaml:"fields"`
}

type yamlExtern struct {
	Name     string   `yaml:"name"`
	Params   []string `yaml:"params,omitempty"`
	Return   string   `yaml:"return"`
	Variadic bool     `yaml:"variadic,omitempty"`
}

type yamlFunction struct {
	Name   string      `yaml:"name"`
	Params []yamlParam `yaml:"params,omitempty"`
	Return string      `yaml:"return"`
	Body   []yamlStmt  `yaml:"body,omitempty"`
}

type yamlParam struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// yamlStmt carries exactly one statement kind.
type yamlStmt struct {
	Let    *yamlLet    `yaml:"let,omitempty"`
	Assign *yamlAssign `yaml:"assign,omitempty"`
	Expr   *yamlExpr   `yaml:"expr,omitempty"`
	Return *yamlReturn `yaml:"return,omitempty"`
}

type yamlLet struct {
	Name  string    `yaml:"name"`
	Type  string    `yaml:"type,omitempty"`
	Value *yamlExpr `yaml:"value"`
}

type yamlAssign struct {
	Name  string    `yaml:"name"`
	Value *yamlExpr `yaml:"value"`
}

// yamlReturn is present for both value and bare returns; a bare return is
// spelled "return: {}".
type yamlReturn struct {
	Value *yamlExpr `yaml:"value,omitempty"`
}

// yamlExpr carries exactly one expression kind. Type refines literal
// widths (int defaults to int32, float to float64).
type yamlExpr struct {
	Int    *int64      `yaml:"int,omitempty"`
	Float  *float64    `yaml:"float,omitempty"`
	Bool   *bool       `yaml:"bool,omitempty"`
	String *string     `yaml:"string,omitempty"`
	Var    string      `yaml:"var,omitempty"`
	Binary *yamlBinary `yaml:"binary,omitempty"`
	Unary  *yamlUnary  `yaml:"unary,omitempty"`
	Call   *yamlCall   `yaml:"call,omitempty"`
	Field  *yamlField  `yaml:"field,omitempty"`
	New    *yamlAlloc  `yaml:"new,omitempty"`
	Type   string      `yaml:"type,omitempty"`
}

type yamlBinary struct {
	Op    string    `yaml:"op"`
	Left  *yamlExpr `yaml:"left"`
	Right *yamlExpr `yaml:"right"`
}

type yamlUnary struct {
	Op      string    `yaml:"op"`
	Operand *yamlExpr `yaml:"operand"`
}

type yamlCall struct {
	Func string      `yaml:"func"`
	Args []*yamlExpr `yaml:"args,omitempty"`
}

type yamlField struct {
	Base *yamlExpr `yaml:"base"`
	Name string    `yaml:"name"`
}

type yamlAlloc struct {
	Struct string          `yaml:"struct"`
	Fields []yamlFieldInit `yaml:"fields,omitempty"`
}

type yamlFieldInit struct {
	Name  string    `yaml:"name"`
	Value *yamlExpr `yaml:"value"`
}

// Load reads and resolves a unit file.
func Load(path string) (*ir.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read unit file: %w", err)
	}
	unit, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return unit, nil
}

// Parse decodes and resolves the bytes of a unit file. Unknown fields are
// rejected so schema typos surface as errors instead of silent drops.
func Parse(data []byte) (*ir.Unit, error) {
	var raw yamlUnit
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse unit file: %w", err)
	}
	if err := checkVersion(raw.IRVersion); err != nil {
		return nil, err
	}
	return resolveUnit(&raw)
}

func checkVersion(v string) error {
	if v == "" {
		return fmt.Errorf("ir_version is required")
	}
	ver, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("invalid ir_version %q: %w", v, err)
	}
	if !versionRange.Check(ver) {
		return fmt.Errorf("ir_version %s outside supported range %s", v, VersionRange)
	}
	return nil
}
