package validation_test

import (
	"strings"
	"testing"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
	"github.com/BrandonDHaskell/docbeacon/internal/validation"
)

func TestValidateStruct_CreateDocumentRequest(t *testing.T) {
	cases := []struct {
		name      string
		req       types.CreateDocumentRequest
		wantField string
		wantTag   string
	}{
		{"valid", types.CreateDocumentRequest{DocumentID: "DOC_1.a-b", RecipientLabel: "Alice", Content: "hi"}, "", ""},
		{"defaults allowed", types.CreateDocumentRequest{Content: "hi"}, "", ""},
		{"missing content", types.CreateDocumentRequest{DocumentID: "DOC1"}, "content", "required"},
		{"slash in id", types.CreateDocumentRequest{DocumentID: "a/b", Content: "x"}, "document_id", "docid"},
		{"space in recipient", types.CreateDocumentRequest{RecipientLabel: "Bob Smith", Content: "x"}, "recipient_label", "docid"},
		{"id too long", types.CreateDocumentRequest{DocumentID: strings.Repeat("a", 129), Content: "x"}, "document_id", "max"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validation.ValidateStruct(&tc.req)
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !err.Has(tc.wantField, tc.wantTag) {
				t.Errorf("expected %s/%s in %+v", tc.wantField, tc.wantTag, err.Fields)
			}
		})
	}
}

func TestRequestValidationError_Message(t *testing.T) {
	err := validation.ValidateStruct(&types.CreateDocumentRequest{DocumentID: "bad id"})
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "content is required") || !strings.Contains(msg, "document_id may only contain") {
		t.Errorf("message = %q", msg)
	}
}
