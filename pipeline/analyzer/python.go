// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analyzer

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/vesselforge/vesselforge/pipeline/artifact"
)

// analyzePython parses Python source with tree-sitter and extracts one
// FunctionSpec per function definition, including methods and decorated
// definitions. Any syntax error rejects the whole file.
func analyzePython(ctx context.Context, content []byte, sourcePath string) (*artifact.Blueprint, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("%w: tree-sitter: %v", ErrParse, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("%w: nil root node", ErrParse)
	}
	// Whole-file rejection: downstream cache hashing assumes complete,
	// deterministic input, so partial function lists are never returned.
	if root.HasError() {
		return nil, fmt.Errorf("%w: %s contains syntax errors", ErrParse, sourcePath)
	}

	bp := &artifact.Blueprint{
		Status:         artifact.StatusOK,
		SourceLanguage: "python",
		SourcePath:     sourcePath,
		Functions:      make([]artifact.FunctionSpec, 0),
	}

	collectFunctions(root, content, &bp.Functions)
	return bp, nil
}

// collectFunctions walks the tree and appends a spec for every function
// definition, in source order. Nested definitions are analyzed as their
// own functions in addition to contributing to the parent's body.
func collectFunctions(node *sitter.Node, content []byte, out *[]artifact.FunctionSpec) {
	if node.Type() == "function_definition" {
		if spec := analyzeFunction(node, content); spec != nil {
			*out = append(*out, *spec)
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectFunctions(node.Child(i), content, out)
	}
}

// analyzeFunction builds the FunctionSpec for one function_definition node.
func analyzeFunction(node *sitter.Node, content []byte) *artifact.FunctionSpec {
	var name string
	var paramsNode, bodyNode *sitter.Node
	var returnHint string

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier":
			if name == "" {
				name = nodeText(child, content)
			}
		case "parameters":
			paramsNode = child
		case "type":
			returnHint = nodeText(child, content)
		case "block":
			bodyNode = child
		}
	}

	if name == "" || bodyNode == nil {
		return nil
	}

	source := nodeText(node, content)
	bodyLower := strings.ToLower(nodeText(bodyNode, content))

	spec := &artifact.FunctionSpec{
		Name:       name,
		StartLine:  int(node.StartPoint().Row + 1),
		LineCount:  int(node.EndPoint().Row-node.StartPoint().Row) + 1,
		Source:     source,
		Complexity: cyclomaticComplexity(bodyNode),
		ReturnHint: returnHint,
	}

	spec.HasLoops = containsLoop(bodyNode)
	spec.HasRecursion = callsSelf(bodyNode, content, name)
	if paramsNode != nil {
		spec.ArgHints = argumentHints(paramsNode, content)
	}

	usesIO := containsAnyKeyword(bodyLower, ioKeywords)
	usesMath := containsAnyKeyword(bodyLower, mathKeywords)
	usesCrypto := containsAnyKeyword(bodyLower, cryptoKeywords)

	spec.Target, spec.Rationale = recommendTarget(ruleInput{
		Complexity: spec.Complexity,
		HasLoops:   spec.HasLoops,
		UsesIO:     usesIO,
		UsesMath:   usesMath,
		UsesCrypto: usesCrypto,
	})

	return spec
}

// decisionNodeTypes are the Python AST node types that open an independent
// path through the function. Cyclomatic complexity is 1 + their count.
var decisionNodeTypes = map[string]bool{
	"if_statement":           true,
	"elif_clause":            true,
	"for_statement":          true,
	"while_statement":        true,
	"except_clause":          true,
	"conditional_expression": true,
	"boolean_operator":       true,
	"for_in_clause":          true, // comprehension loops
	"case_clause":            true, // match statements
	"assert_statement":       true,
}

// cyclomaticComplexity computes 1 + count of decision nodes in the body.
// Nested function definitions are excluded; they are scored separately.
func cyclomaticComplexity(body *sitter.Node) int {
	return 1 + countDecisions(body)
}

func countDecisions(node *sitter.Node) int {
	count := 0
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "function_definition" {
			continue
		}
		if decisionNodeTypes[child.Type()] {
			count++
		}
		count += countDecisions(child)
	}
	return count
}

// loopNodeTypes are the constructs that set the has_loops flag.
var loopNodeTypes = map[string]bool{
	"for_statement":   true,
	"while_statement": true,
	"for_in_clause":   true,
}

// containsLoop reports whether any loop construct is nested anywhere in the
// body, excluding nested function definitions.
func containsLoop(node *sitter.Node) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "function_definition" {
			continue
		}
		if loopNodeTypes[child.Type()] || containsLoop(child) {
			return true
		}
	}
	return false
}

// callsSelf reports whether the function's own name appears in call
// position within its body. Attribute calls (self.f(), cls.f()) count when
// the final attribute segment matches.
func callsSelf(node *sitter.Node, content []byte, name string) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "function_definition" {
			continue
		}
		if child.Type() == "call" {
			fn := child.ChildByFieldName("function")
			if fn != nil && calleeName(fn, content) == name {
				return true
			}
		}
		if callsSelf(child, content, name) {
			return true
		}
	}
	return false
}

// calleeName extracts the terminal identifier of a call target.
func calleeName(fn *sitter.Node, content []byte) string {
	switch fn.Type() {
	case "identifier":
		return nodeText(fn, content)
	case "attribute":
		attr := fn.ChildByFieldName("attribute")
		if attr != nil {
			return nodeText(attr, content)
		}
	}
	return ""
}

// argumentHints extracts per-argument type hints from a parameters node.
// Annotated parameters carry their annotation; default values contribute a
// literal-derived hint; everything else is "any". The implicit self/cls
// receiver is skipped.
func argumentHints(params *sitter.Node, content []byte) []string {
	hints := make([]string, 0, params.ChildCount())
	for i := 0; i < int(params.ChildCount()); i++ {
		child := params.Child(i)
		switch child.Type() {
		case "identifier":
			name := nodeText(child, content)
			if name == "self" || name == "cls" {
				continue
			}
			hints = append(hints, "any")
		case "typed_parameter", "typed_default_parameter":
			if t := child.ChildByFieldName("type"); t != nil {
				hints = append(hints, nodeText(t, content))
			} else {
				hints = append(hints, "any")
			}
		case "default_parameter":
			if v := child.ChildByFieldName("value"); v != nil {
				hints = append(hints, literalHint(v.Type()))
			} else {
				hints = append(hints, "any")
			}
		case "list_splat_pattern", "dictionary_splat_pattern":
			hints = append(hints, "variadic")
		}
	}
	return hints
}

// literalHint maps a literal node type to a coarse type hint.
func literalHint(nodeType string) string {
	switch nodeType {
	case "integer":
		return "int"
	case "float":
		return "float"
	case "string":
		return "str"
	case "true", "false":
		return "bool"
	case "list", "list_comprehension":
		return "list"
	case "dictionary", "dictionary_comprehension":
		return "dict"
	case "none":
		return "any"
	default:
		return "any"
	}
}

// Keyword sets driving the target heuristics. Matching is substring-based
// over the lowercased body, the same trade-off the original profiler made:
// cheap, deterministic, and good enough to pick a target class.
var (
	ioKeywords = []string{
		"open(", "read(", "write(", "print(", "input(",
		"requests.", "urllib", "socket", "subprocess", "os.path",
	}
	mathKeywords = []string{
		"math.", "numpy", "np.", "sqrt", "matrix", "dot(", "sum(",
		"mean(", "pow(", "abs(",
	}
	cryptoKeywords = []string{
		"hash", "sha", "md5", "hmac", "aes", "cipher", "digest",
		"encrypt", "decrypt", "nonce",
	}
)

func containsAnyKeyword(body string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(body, kw) {
			return true
		}
	}
	return false
}

// nodeText returns the source text covered by a node.
func nodeText(node *sitter.Node, content []byte) string {
	return string(content[node.StartByte():node.EndByte()])
}
