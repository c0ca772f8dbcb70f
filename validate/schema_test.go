package validate

import "testing"

func TestValidateWorkflowSchema_Valid(t *testing.T) {
	doc := []byte(`
name: publish-testpypi
permissions: read-all
harden:
  egress_policy: block
  disable_sudo: true
  allowed_endpoints:
    - test.pypi.org:443
artifact:
  name: python-package-distributions
  path: dist/
publish:
  repository_url: https://test.pypi.org/legacy/
  permissions:
    id-token: write
environment:
  name: testpypi
  url: https://test.pypi.org/p/python-kraken-sdk
`)
	errs, err := ValidateWorkflowSchema(doc)
	if err != nil {
		t.Fatalf("ValidateWorkflowSchema: %v", err)
	}
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestValidateWorkflowSchema_Empty(t *testing.T) {
	errs, err := ValidateWorkflowSchema(nil)
	if err != nil {
		t.Fatalf("ValidateWorkflowSchema: %v", err)
	}
	if len(errs) != 0 {
		t.Errorf("empty document relies on defaults, got %v", errs)
	}
}

func TestValidateWorkflowSchema_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "nmae: x\n",
		"bad policy":       "harden:\n  egress_policy: open\n",
		"id-token read":    "publish:\n  permissions:\n    id-token: read\n",
		"bad store":        "artifact:\n  store:\n    type: ftp\n",
		"sudo not boolean": "harden:\n  disable_sudo: maybe\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			errs, err := ValidateWorkflowSchema([]byte(doc))
			if err != nil {
				t.Fatalf("ValidateWorkflowSchema: %v", err)
			}
			if len(errs) == 0 {
				t.Errorf("expected schema errors for %q", doc)
			}
		})
	}
}

func TestValidateWorkflowSchema_BadYAML(t *testing.T) {
	if _, err := ValidateWorkflowSchema([]byte("name: [unclosed\n")); err == nil {
		t.Error("expected parse error")
	}
}
