package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type openAPIDoc struct {
	Paths      map[string]map[string]any `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

// routes served by services/library/internal/server.
var requiredOperations = map[string][]string{
	"/healthz":          {"get"},
	"/books":            {"get", "post"},
	"/books/{id}":       {"get"},
	"/books/{id}/loans": {"get"},
	"/loans":            {"get", "post"},
	"/loans/late":       {"get"},
	"/loans/{id}":       {"get", "patch"},
}

// JSON fields written by the server DTOs.
var requiredSchemaFields = map[string][]string{
	"Book":      {"id", "isbn", "title", "author"},
	"Loan":      {"id", "isbn", "customer", "loanDate", "returned", "book"},
	"LoanPage":  {"content", "totalElements", "totalPages", "page", "size"},
	"LateLoans": {"items", "count", "lateLoanDays"},
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}

	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if err := checkDoc(doc); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI check passed.")
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func checkDoc(doc openAPIDoc) error {
	errResp, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		return err
	}
	if err := validateErrorResponse(errResp); err != nil {
		return err
	}
	detail, err := getSchema(doc, "ErrorDetail")
	if err != nil {
		return err
	}
	if err := validateErrorDetail(detail); err != nil {
		return err
	}
	if err := validateOperations(doc); err != nil {
		return err
	}

	names := make([]string, 0, len(requiredSchemaFields))
	for name := range requiredSchemaFields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s, err := getSchema(doc, name)
		if err != nil {
			return err
		}
		if err := validateFields(name, s, requiredSchemaFields[name]); err != nil {
			return err
		}
	}
	return nil
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateOperations(doc openAPIDoc) error {
	paths := make([]string, 0, len(requiredOperations))
	for p := range requiredOperations {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		item, ok := doc.Paths[p]
		if !ok {
			return fmt.Errorf("path %q missing", p)
		}
		for _, method := range requiredOperations[p] {
			if _, ok := item[method]; !ok {
				return fmt.Errorf("operation %s %s missing", strings.ToUpper(method), p)
			}
		}
	}
	return nil
}

func validateFields(name string, s schema, fields []string) error {
	if s.Type != "object" {
		return fmt.Errorf("%s must be object", name)
	}
	required := makeSet(s.Required)
	for _, field := range fields {
		if _, ok := s.Properties[field]; !ok {
			return fmt.Errorf("%s.%s missing", name, field)
		}
		if !required[field] {
			return fmt.Errorf("%s.required must include %q", name, field)
		}
	}
	return nil
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	for _, field := range []string{"error", "code", "requestId"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	detailsProp, ok := s.Properties["details"]
	if !ok || detailsProp.Type != "array" {
		return errors.New("ErrorResponse.details must be array")
	}
	if detailsProp.Items == nil || strings.TrimSpace(detailsProp.Items.Ref) != "#/components/schemas/ErrorDetail" {
		return errors.New("ErrorResponse.details.items must reference ErrorDetail")
	}
	return nil
}

func validateErrorDetail(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorDetail must be object")
	}
	required := makeSet(s.Required)
	if !required["reason"] {
		return errors.New("ErrorDetail.required must include \"reason\"")
	}
	for _, field := range []string{"reason", "field"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorDetail.%s must be string", field)
		}
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
