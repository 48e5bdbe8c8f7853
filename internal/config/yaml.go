package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Imageomics/phenopype/internal/annotation"
)

// stepsKey is the top-level key holding the step sequence.
const stepsKey = "processing_steps"

// annotationKey is the argument key carrying the annotation-control block
// on the YAML side. Internally the block is Method.Annotation.
const annotationKey = "ANNOTATION"

// ErrTemplateLocked marks a document that is a locked template; create a
// working copy before running it.
var ErrTemplateLocked = errors.New("config: document is a locked template")

// Load reads and parses a document from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return doc, nil
}

// Save writes the document to disk, replacing the previous content.
func Save(doc *Document, path string) error {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %q: %w", path, err)
	}
	return nil
}

// Parse decodes YAML bytes into a Document.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("config: invalid YAML: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("config: empty document")
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config: top level must be a mapping")
	}

	doc := &Document{}
	seenSteps := false
	for i := 0; i+1 < len(top.Content); i += 2 {
		key := top.Content[i].Value
		val := top.Content[i+1]
		if key == stepsKey {
			if seenSteps {
				return nil, fmt.Errorf("config: duplicate %s", stepsKey)
			}
			steps, err := parseSteps(val)
			if err != nil {
				return nil, err
			}
			doc.Steps = steps
			seenSteps = true
			continue
		}
		v, err := valueFromNode(val)
		if err != nil {
			return nil, fmt.Errorf("config: key %q: %w", key, err)
		}
		if seenSteps {
			if doc.Post == nil {
				doc.Post = &Args{}
			}
			doc.Post.Set(key, v)
		} else {
			if doc.Pre == nil {
				doc.Pre = &Args{}
			}
			doc.Pre.Set(key, v)
		}
	}
	if !seenSteps {
		return nil, fmt.Errorf("config: missing %s", stepsKey)
	}
	return doc, nil
}

func parseSteps(node *yaml.Node) ([]Step, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("config: %s must be a sequence", stepsKey)
	}
	steps := make([]Step, 0, len(node.Content))
	for _, item := range node.Content {
		item = deref(item)
		switch item.Kind {
		case yaml.ScalarNode:
			// bare step name, no methods this run
			steps = append(steps, Step{Name: item.Value})
		case yaml.MappingNode:
			if len(item.Content) != 2 {
				return nil, fmt.Errorf("config: step entry must have exactly one key")
			}
			name := item.Content[0].Value
			methods, err := parseMethods(name, deref(item.Content[1]))
			if err != nil {
				return nil, err
			}
			steps = append(steps, Step{Name: name, Methods: methods})
		default:
			return nil, fmt.Errorf("config: invalid step entry (line %d)", item.Line)
		}
	}
	return steps, nil
}

func parseMethods(step string, node *yaml.Node) ([]Method, error) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("config: step %q must hold a method sequence", step)
	}
	methods := make([]Method, 0, len(node.Content))
	for _, item := range node.Content {
		item = deref(item)
		switch item.Kind {
		case yaml.ScalarNode:
			methods = append(methods, Method{Name: item.Value})
		case yaml.MappingNode:
			if len(item.Content) != 2 {
				return nil, fmt.Errorf("config: method entry in %q must have exactly one key", step)
			}
			name := item.Content[0].Value
			m := Method{Name: name}
			val := deref(item.Content[1])
			if !(val.Kind == yaml.ScalarNode && val.Tag == "!!null") {
				v, err := valueFromNode(val)
				if err != nil {
					return nil, fmt.Errorf("config: method %s.%s: %w", step, name, err)
				}
				args, ok := v.(*Args)
				if !ok {
					return nil, fmt.Errorf("config: method %s.%s arguments must be a mapping", step, name)
				}
				ctrl, err := extractControl(args)
				if err != nil {
					return nil, fmt.Errorf("config: method %s.%s: %w", step, name, err)
				}
				m.Annotation = ctrl
				if args.Len() > 0 {
					m.Args = args
				}
			}
			methods = append(methods, m)
		default:
			return nil, fmt.Errorf("config: invalid method entry in %q (line %d)", step, item.Line)
		}
	}
	return methods, nil
}

// extractControl pulls the ANNOTATION block out of args, leaving the
// remaining operation arguments behind.
func extractControl(args *Args) (*Control, error) {
	v, ok := args.Get(annotationKey)
	if !ok {
		return nil, nil
	}
	args.Delete(annotationKey)
	block, ok := v.(*Args)
	if !ok {
		return nil, fmt.Errorf("%s must be a mapping", annotationKey)
	}
	ctrl := &Control{}
	if tv, ok := block.Get("type"); ok {
		s, ok := tv.(string)
		if !ok {
			return nil, fmt.Errorf("%s.type must be a string", annotationKey)
		}
		t, err := annotation.ParseType(s)
		if err != nil {
			return nil, err
		}
		ctrl.Type = t
	}
	ctrl.ID = block.String("id", "")
	if ev, ok := block.Get("edit"); ok {
		edit, err := annotation.ParseEditPolicy(ev)
		if err != nil {
			return nil, err
		}
		ctrl.Edit = edit
	}
	return ctrl, nil
}

func deref(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		return n.Alias
	}
	return n
}

func valueFromNode(n *yaml.Node) (any, error) {
	n = deref(n)
	switch n.Kind {
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := valueFromNode(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := &Args{}
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := valueFromNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out.Set(n.Content[i].Value, v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported node kind %d (line %d)", n.Kind, n.Line)
	}
}

// Marshal serializes the document back to YAML, steps and keys in order.
func Marshal(doc *Document) ([]byte, error) {
	top := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}

	appendArgs := func(a *Args) error {
		if a == nil {
			return nil
		}
		for _, p := range a.Pairs {
			v, err := nodeFromValue(p.Value, false)
			if err != nil {
				return err
			}
			top.Content = append(top.Content, scalarNode(p.Key), v)
		}
		return nil
	}

	if err := appendArgs(doc.Pre); err != nil {
		return nil, err
	}

	stepsNode := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, s := range doc.Steps {
		n, err := stepNode(s)
		if err != nil {
			return nil, err
		}
		stepsNode.Content = append(stepsNode.Content, n)
	}
	top.Content = append(top.Content, scalarNode(stepsKey), stepsNode)

	if err := appendArgs(doc.Post); err != nil {
		return nil, err
	}

	root := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{top}}
	return yaml.Marshal(root)
}

func stepNode(s Step) (*yaml.Node, error) {
	if s.Methods == nil {
		return scalarNode(s.Name), nil
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, m := range s.Methods {
		n, err := methodNode(m)
		if err != nil {
			return nil, err
		}
		seq.Content = append(seq.Content, n)
	}
	return &yaml.Node{
		Kind:    yaml.MappingNode,
		Tag:     "!!map",
		Content: []*yaml.Node{scalarNode(s.Name), seq},
	}, nil
}

func methodNode(m Method) (*yaml.Node, error) {
	if m.Annotation == nil && m.Args.Len() == 0 {
		return scalarNode(m.Name), nil
	}
	body := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if m.Annotation != nil {
		body.Content = append(body.Content, scalarNode(annotationKey), controlNode(m.Annotation))
	}
	if m.Args != nil {
		for _, p := range m.Args.Pairs {
			v, err := nodeFromValue(p.Value, false)
			if err != nil {
				return nil, err
			}
			body.Content = append(body.Content, scalarNode(p.Key), v)
		}
	}
	return &yaml.Node{
		Kind:    yaml.MappingNode,
		Tag:     "!!map",
		Content: []*yaml.Node{scalarNode(m.Name), body},
	}, nil
}

// controlNode emits the ANNOTATION block flow-style on one line, the way
// users expect to edit it.
func controlNode(c *Control) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Style: yaml.FlowStyle}
	n.Content = append(n.Content, scalarNode("type"), scalarNode(string(c.Type)))
	n.Content = append(n.Content, scalarNode("id"), scalarNode(c.ID))
	edit := &yaml.Node{}
	if c.Edit == annotation.EditLocked {
		_ = edit.Encode(false)
	} else {
		_ = edit.Encode(string(c.Edit))
	}
	n.Content = append(n.Content, scalarNode("edit"), edit)
	return n
}

func nodeFromValue(v any, flow bool) (*yaml.Node, error) {
	switch x := v.(type) {
	case *Args:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if flow {
			n.Style = yaml.FlowStyle
		}
		for _, p := range x.Pairs {
			c, err := nodeFromValue(p.Value, flow)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, scalarNode(p.Key), c)
		}
		return n, nil
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
		for _, e := range x {
			c, err := nodeFromValue(e, true)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, c)
		}
		return n, nil
	default:
		n := &yaml.Node{}
		if err := n.Encode(v); err != nil {
			return nil, fmt.Errorf("config: encode value %v: %w", v, err)
		}
		return n, nil
	}
}

func scalarNode(s string) *yaml.Node {
	n := &yaml.Node{}
	_ = n.Encode(s)
	return n
}
