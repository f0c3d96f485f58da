package assistant

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"djassa/internal/core"
)

// IntentType is the kind of ledger write a message asks for.
type IntentType string

const (
	IntentSale    IntentType = "sale"
	IntentExpense IntentType = "expense"
	IntentDebt    IntentType = "debt"
	IntentStock   IntentType = "stock"
	IntentNone    IntentType = "none"
)

// ErrInvalidIntent wraps model output that does not match the intent schema.
var ErrInvalidIntent = errors.New("invalid intent")

// Details holds the fields extracted from the message. Zero means absent.
type Details struct {
	ProductName  string `mapstructure:"produit_nom" json:"product_name,omitempty"`
	Quantity     int    `mapstructure:"quantite" json:"quantity,omitempty"`
	UnitPrice    int64  `mapstructure:"prix_unitaire" json:"unit_price,omitempty"`
	TotalAmount  int64  `mapstructure:"montant_total" json:"total_amount,omitempty"`
	CustomerName string `mapstructure:"client_nom" json:"customer_name,omitempty"`
	Description  string `mapstructure:"description" json:"description,omitempty"`
	Category     string `mapstructure:"categorie" json:"category,omitempty"`
}

type Intent struct {
	HasTransaction bool       `mapstructure:"has_transaction" json:"has_transaction"`
	Type           IntentType `mapstructure:"transaction_type" json:"transaction_type"`
	Details        Details    `mapstructure:"details" json:"details"`
	Confidence     float64    `mapstructure:"confidence" json:"confidence"`
	MissingInfo    []string   `mapstructure:"missing_info" json:"missing_info,omitempty"`
}

//go:embed intent_schema.json
var intentSchemaJSON []byte

func compileIntentSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("intent.json", bytes.NewReader(intentSchemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("intent.json")
}

// IntentDetector asks the model whether a message describes a transaction.
type IntentDetector struct {
	model  Model
	schema *jsonschema.Schema
}

func NewIntentDetector(model Model) (*IntentDetector, error) {
	schema, err := compileIntentSchema()
	if err != nil {
		return nil, fmt.Errorf("compile intent schema: %w", err)
	}
	return &IntentDetector{model: model, schema: schema}, nil
}

// Detect classifies message. Output without a JSON object yields IntentNone.
func (d *IntentDetector) Detect(ctx context.Context, message string, products []core.Product, lang Language) (Intent, error) {
	if d.model == nil {
		return Intent{Type: IntentNone}, ErrNotConfigured
	}
	raw, err := d.model.Generate(ctx, intentPrompt(lang, message, products))
	if err != nil {
		return Intent{Type: IntentNone}, fmt.Errorf("detect intent: %w", err)
	}
	intent, err := d.parse(raw)
	if err != nil {
		slog.WarnContext(ctx, "Discarding model intent", "error", err)
		return Intent{Type: IntentNone}, err
	}
	return intent, nil
}

func (d *IntentDetector) parse(raw string) (Intent, error) {
	obj := extractObject(cleanFences(raw))
	if obj == "" {
		return Intent{Type: IntentNone}, nil
	}

	var doc any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}
	if err := d.schema.Validate(doc); err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}

	var intent Intent
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &intent,
	})
	if err != nil {
		return Intent{}, err
	}
	if err := dec.Decode(doc); err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}

	intent.Type = normalizeType(string(intent.Type))
	if intent.Type == IntentNone {
		intent.HasTransaction = false
	}
	intent.Details.ProductName = strings.TrimSpace(intent.Details.ProductName)
	intent.Details.CustomerName = strings.TrimSpace(intent.Details.CustomerName)
	intent.Details.Category = strings.TrimSpace(intent.Details.Category)
	return intent, nil
}

// normalizeType maps French and English labels to an IntentType.
func normalizeType(label string) IntentType {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "vente", "sale":
		return IntentSale
	case "depense", "dépense", "expense":
		return IntentExpense
	case "dette", "debt":
		return IntentDebt
	case "stock", "restock", "approvisionnement":
		return IntentStock
	}
	return IntentNone
}
