package agent

import (
	"fmt"
	"strings"
)

const payloadTemplate = `DADOS CLÍNICOS FORNECIDOS PELO MÉDICO:
---
%s
---

CONTEÚDO EXTRAÍDO DE DOCUMENTO PDF ANEXO:
---
%s
---
`

// ComposePayload merges the clinician's free text with text extracted from an
// attached document into the single input of a run. The document text is
// opaque; nothing here interprets it.
func ComposePayload(clinical, document string) (string, error) {
	clinical = strings.TrimSpace(clinical)
	document = strings.TrimSpace(document)
	if clinical == "" && document == "" {
		return "", ErrEmptyInput
	}
	return fmt.Sprintf(payloadTemplate, clinical, document), nil
}
