package expression

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const defaultCacheSize = 128

// Compiler compiles and caches programs. It is safe for concurrent use; concurrent
// compilations of the same unit run once.
type Compiler struct {
	cache    *lru.Cache[uint64, *Program]
	group    singleflight.Group
	observer func(cacheHit bool)
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithObserver registers a callback invoked for every Compile call.
func WithObserver(fn func(cacheHit bool)) CompilerOption {
	return func(c *Compiler) {
		c.observer = fn
	}
}

// NewCompiler creates a compiler caching up to size programs.
func NewCompiler(size int, opts ...CompilerOption) *Compiler {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, _ := lru.New[uint64, *Program](size)
	c := &Compiler{cache: cache}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile parses, validates and lowers source into a program named name with the given
// parameters. The program must evaluate to outputType.
func (c *Compiler) Compile(name, source string, params []Parameter, outputType DataType) (*Program, error) {
	key := unitKey(name, source, params, outputType)

	if p, ok := c.cache.Get(key); ok {
		c.observe(true)
		return p, nil
	}
	c.observe(false)

	v, err, _ := c.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
		p, err := compile(name, source, params, outputType)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Program), nil
}

// Len returns the number of cached programs.
func (c *Compiler) Len() int {
	return c.cache.Len()
}

func (c *Compiler) observe(hit bool) {
	if c.observer != nil {
		c.observer(hit)
	}
}

func unitKey(name, source string, params []Parameter, outputType DataType) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(name)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(source)
	for _, p := range params {
		_, _ = d.Write([]byte{0, p.Type.Suffix()})
		_, _ = d.WriteString(p.Name)
	}
	_, _ = d.Write([]byte{0, outputType.Suffix()})
	return d.Sum64()
}

// Compile compiles a program without caching.
func Compile(name, source string, params []Parameter, outputType DataType) (*Program, error) {
	return compile(name, source, params, outputType)
}

func compile(name, source string, params []Parameter, outputType DataType) (*Program, error) {
	if name == "" {
		return nil, ErrEmptyExpressionName
	}

	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if !IsAllowedVariableName(p.Name) {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, ErrInvalidVariableName)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, ErrRedefinedVariable)
		}
		seen[p.Name] = true
	}

	root, slots, err := parse(source, params)
	if err != nil {
		return nil, err
	}
	if root.dataType() != outputType {
		return nil, fmt.Errorf("%s returns %s, declared %s: %w", name, root.dataType(), outputType, ErrTypeMismatch)
	}

	return &Program{
		name:       name,
		params:     append([]Parameter(nil), params...),
		outputType: outputType,
		source:     source,
		slots:      slots,
		root:       lower(root),
	}, nil
}
