package springview

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/vmihailenco/msgpack/v5"
)

// ----------------------------- Instruction stream ---------------------------

type opcode uint8

const (
	opText opcode = iota
	opEcho
	opIf
	opElseIf
	opElse
	opEndIf
	opLoop
	opLoopElse
	opLoopEnd
	opInclude
	opAttr
	opBlock
	opExec
)

var opNames = [...]string{
	opText:     "text",
	opEcho:     "echo",
	opIf:       "if",
	opElseIf:   "elseif",
	opElse:     "else",
	opEndIf:    "endif",
	opLoop:     "loop",
	opLoopElse: "loop-else",
	opLoopEnd:  "loop-end",
	opInclude:  "include",
	opAttr:     "attr",
	opBlock:    "block",
	opExec:     "exec",
}

func (o opcode) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", o)
}

type valueSource uint8

const (
	fromExpr valueSource = iota
	fromQuery
	fromForm
)

// instr is one compiled instruction. Text holds the literal for opText, the
// attribute name for opAttr, the flag for opBlock, the parameter name for
// query/form echoes and the view name for opInclude.
type instr struct {
	Op         opcode      `json:"op" msgpack:"op"`
	Text       string      `json:"text,omitempty" msgpack:"text,omitempty"`
	Expr       string      `json:"expr,omitempty" msgpack:"expr,omitempty"`
	Default    string      `json:"def,omitempty" msgpack:"def,omitempty"`
	HasDefault bool        `json:"has_def,omitempty" msgpack:"has_def,omitempty"`
	Guard      bool        `json:"guard,omitempty" msgpack:"guard,omitempty"`
	Escape     bool        `json:"escape,omitempty" msgpack:"escape,omitempty"`
	Source     valueSource `json:"src,omitempty" msgpack:"src,omitempty"`
	Level      int         `json:"level,omitempty" msgpack:"level,omitempty"`
	Path       string      `json:"path,omitempty" msgpack:"path,omitempty"`
	Artifact   string      `json:"artifact,omitempty" msgpack:"artifact,omitempty"`
	Stmts      []string    `json:"stmts,omitempty" msgpack:"stmts,omitempty"`
}

const artifactVersion = 1

// artifact is the persisted form of one compiled template.
type artifact struct {
	Version int       `json:"version" msgpack:"version"`
	Source  string    `json:"source" msgpack:"source"`
	Built   time.Time `json:"built" msgpack:"built"`
	Program []instr   `json:"program" msgpack:"program"`
}

// ----------------------------- Artifact codecs ------------------------------

type codec interface {
	marshal(a *artifact) ([]byte, error)
	unmarshal(data []byte, a *artifact) error
}

type jsonCodec struct{}

func (jsonCodec) marshal(a *artifact) ([]byte, error)      { return json.Marshal(a) }
func (jsonCodec) unmarshal(data []byte, a *artifact) error { return json.Unmarshal(data, a) }

type msgpackCodec struct{}

func (msgpackCodec) marshal(a *artifact) ([]byte, error)      { return msgpack.Marshal(a) }
func (msgpackCodec) unmarshal(data []byte, a *artifact) error { return msgpack.Unmarshal(data, a) }

// codecFor picks the artifact encoding from the cache extension; anything
// other than msgpack is stored as JSON.
func codecFor(ext string) codec {
	switch strings.ToLower(ext) {
	case "msgpack", "mpk", "mp":
		return msgpackCodec{}
	default:
		return jsonCodec{}
	}
}

// ----------------------------- Assembly -------------------------------------

type frame struct {
	op     opcode
	ifn    *ifNode
	loop   *loopNode
	elsed  bool
	parent *[]node
}

// assemble turns a flat instruction stream into a node tree, compiling every
// host expression. Unbalanced structure is reported as a malformed tag.
func assemble(prog []instr, ec *exprCompiler) (seqNode, error) {
	root := make([]node, 0, len(prog))
	cur := &root
	var stack []*frame

	compile := func(src string) (*hostExpr, error) {
		h, err := ec.compile(src)
		if err != nil {
			return nil, &Error{Kind: ErrMalformedTag, Op: "assemble", Err: err}
		}
		return h, nil
	}
	top := func(op opcode) (*frame, error) {
		if len(stack) == 0 || stack[len(stack)-1].op != op {
			return nil, tagError(ErrMalformedTag, "assemble", "unexpected "+op.String()+" marker")
		}
		return stack[len(stack)-1], nil
	}

	for _, in := range prog {
		switch in.Op {
		case opText:
			if in.Text != "" {
				*cur = append(*cur, textNode{text: in.Text})
			}
		case opEcho:
			n := &echoNode{
				source:     in.Source,
				name:       in.Text,
				def:        in.Default,
				hasDefault: in.HasDefault,
				guard:      in.Guard,
				escape:     in.Escape,
			}
			if in.Source == fromExpr {
				h, err := compile(in.Expr)
				if err != nil {
					return nil, err
				}
				n.expr = h
			}
			*cur = append(*cur, n)
		case opIf:
			h, err := compile(in.Expr)
			if err != nil {
				return nil, err
			}
			br := &condBranch{cond: h}
			n := &ifNode{branches: []*condBranch{br}}
			*cur = append(*cur, n)
			stack = append(stack, &frame{op: opIf, ifn: n, parent: cur})
			cur = (*[]node)(&br.body)
		case opElseIf:
			f, err := top(opIf)
			if err != nil || f.elsed {
				return nil, tagError(ErrMalformedTag, "assemble", "{??(...)} outside of an open {?(...)}")
			}
			h, err := compile(in.Expr)
			if err != nil {
				return nil, err
			}
			br := &condBranch{cond: h}
			f.ifn.branches = append(f.ifn.branches, br)
			cur = (*[]node)(&br.body)
		case opElse:
			f, err := top(opIf)
			if err != nil || f.elsed {
				return nil, tagError(ErrMalformedTag, "assemble", "{?!} outside of an open {?(...)}")
			}
			f.elsed = true
			cur = (*[]node)(&f.ifn.els)
		case opEndIf:
			f, err := top(opIf)
			if err != nil {
				return nil, tagError(ErrMalformedTag, "assemble", "{/?} without a matching {?(...)}")
			}
			stack = stack[:len(stack)-1]
			cur = f.parent
		case opLoop:
			h, err := compile(in.Expr)
			if err != nil {
				return nil, err
			}
			n := &loopNode{level: in.Level, src: h}
			*cur = append(*cur, n)
			stack = append(stack, &frame{op: opLoop, loop: n, parent: cur})
			cur = (*[]node)(&n.body)
		case opLoopElse:
			f, err := top(opLoop)
			if err != nil || f.elsed || f.loop.level != in.Level {
				return nil, tagError(ErrMalformedTag, "assemble", "loop else marker outside of its loop")
			}
			f.elsed = true
			cur = (*[]node)(&f.loop.els)
		case opLoopEnd:
			f, err := top(opLoop)
			if err != nil || f.loop.level != in.Level {
				return nil, tagError(ErrMalformedTag, "assemble", "loop terminator crosses another block")
			}
			stack = stack[:len(stack)-1]
			cur = f.parent
		case opInclude:
			*cur = append(*cur, &includeNode{view: in.Text, source: in.Path, artifact: in.Artifact})
		case opAttr:
			h, err := compile(in.Expr)
			if err != nil {
				return nil, err
			}
			*cur = append(*cur, &attrNode{name: in.Text, cond: h})
		case opBlock:
			*cur = append(*cur, blockNode{flag: in.Text})
		case opExec:
			n := &execNode{}
			for _, st := range in.Stmts {
				name, rhs, ok := splitAssignment(st)
				if !ok {
					rhs = st
				}
				h, err := compile(rhs)
				if err != nil {
					return nil, err
				}
				n.stmts = append(n.stmts, statement{name: name, expr: h})
			}
			*cur = append(*cur, n)
		default:
			return nil, tagError(ErrMalformedTag, "assemble", "unknown instruction "+in.Op.String())
		}
	}

	if len(stack) > 0 {
		if stack[len(stack)-1].op == opIf {
			return nil, tagError(ErrUnterminatedTag, "assemble", "{?(...)} without {/?}")
		}
		return nil, tagError(ErrUnterminatedTag, "assemble", "loop without terminator")
	}
	return seqNode(root), nil
}
