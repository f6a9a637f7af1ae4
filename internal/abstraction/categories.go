package abstraction

import (
	"fmt"
	"os"
	"time"

	"github.com/lanonasis/onasis-gateway/internal/schema"
)

// Category seed. The tables below are the single source of truth for
// which vendor serves which operation; changing a vendor binding here is
// the whole vendor-substitution story.

func newCategory(name, desc string) *Category {
	return &Category{
		Name:        name,
		Description: desc,
		operations:  map[string]*Operation{},
		vendors:     map[string]*Vendor{},
	}
}

func (c *Category) op(name string, o *Operation) *Category {
	c.opOrder = append(c.opOrder, name)
	c.operations[name] = o
	return c
}

// vendor appends a vendor; the first one added is the category default.
func (c *Category) vendor(id, adapter string, mappings map[string]Mapping) *Category {
	c.vendorOrder = append(c.vendorOrder, id)
	c.vendors[id] = &Vendor{Adapter: adapter, Mappings: mappings}
	return c
}

func identity(in map[string]any) map[string]any { return in }

func seedCategories(l *Layer) {
	l.add(paymentCategory())
	l.add(bankingCategory())
	l.add(authCategory())
	l.add(memoryCategory())
	l.add(aiCategory())
	l.add(intelligenceCategory())
	l.add(securityCategory())
	l.add(verificationCategory())
	l.add(infrastructureCategory())
}

func paymentCategory() *Category {
	initSchema := schema.Object(map[string]*schema.Schema{
		"amount":       schema.Num("amount in the currency's major unit"),
		"email":        schema.Str("customer email"),
		"currency":     schema.Str("ISO currency code").WithDefault("NGN"),
		"reference":    schema.Str("caller idempotency reference"),
		"callback_url": schema.Str("redirect after payment"),
		"metadata":     {Type: "object"},
	}, "amount", "email")

	verifySchema := schema.Object(map[string]*schema.Schema{
		"reference": schema.Str("transaction reference"),
	}, "reference")

	listSchema := schema.Object(map[string]*schema.Schema{
		"page":     {Type: "integer", Description: "page number"},
		"per_page": {Type: "integer", Description: "page size"},
		"status":   schema.Str("filter by status").WithEnum("success", "failed", "abandoned"),
	})

	return newCategory("payment", "Payment collection and verification").
		op("initializeTransaction", &Operation{
			Description: "Start a hosted payment and return an authorization URL",
			Schema:      initSchema,
			Enrich: func(in map[string]any) {
				if _, ok := in["reference"]; !ok {
					in["reference"] = fmt.Sprintf("ref_%d", time.Now().UnixMilli())
				}
				if _, ok := in["callback_url"]; !ok {
					if cb := os.Getenv("PAYMENT_CALLBACK_URL"); cb != "" {
						in["callback_url"] = cb
					}
				}
			},
		}).
		op("verifyTransaction", &Operation{
			Description: "Verify the status of a transaction by reference",
			Schema:      verifySchema,
		}).
		op("listTransactions", &Operation{
			Description: "List recent transactions",
			Schema:      listSchema,
		}).
		vendor("paystack", "paystack", map[string]Mapping{
			// Paystack bills in the minor unit (kobo): the canonical major
			// amount is converted here and nowhere else.
			"initializeTransaction": {Tool: "initialize-transaction", Transform: func(in map[string]any) map[string]any {
				out := map[string]any{
					"email":     in["email"],
					"currency":  in["currency"],
					"reference": in["reference"],
				}
				if amount, ok := schema.AsFloat(in["amount"]); ok {
					out["amount"] = amount * 100
				}
				if cb, ok := in["callback_url"]; ok {
					out["callback_url"] = cb
				}
				if md, ok := in["metadata"]; ok {
					out["metadata"] = md
				}
				return out
			}},
			"verifyTransaction": {Tool: "verify-transaction", Transform: identity},
			"listTransactions":  {Tool: "list-transactions", Transform: identity},
		}).
		vendor("flutterwave", "flutterwave", map[string]Mapping{
			// Flutterwave takes the major unit and keys verification on
			// tx_ref, which is the canonical reference.
			"initializeTransaction": {Tool: "initiate-payment", Transform: func(in map[string]any) map[string]any {
				out := map[string]any{
					"amount":   in["amount"],
					"currency": in["currency"],
					"tx_ref":   in["reference"],
					"customer": map[string]any{"email": in["email"]},
				}
				if cb, ok := in["callback_url"]; ok {
					out["redirect_url"] = cb
				}
				return out
			}},
			"verifyTransaction": {Tool: "verify-payment", Transform: func(in map[string]any) map[string]any {
				return map[string]any{"tx_ref": in["reference"]}
			}},
		})
}

func bankingCategory() *Category {
	resolveSchema := schema.Object(map[string]*schema.Schema{
		"account_number": schema.Str("10-digit NUBAN account number"),
		"bank_code":      schema.Str("CBN bank code"),
	}, "account_number", "bank_code")

	transferSchema := schema.Object(map[string]*schema.Schema{
		"amount":         schema.Num("amount in the major unit"),
		"account_number": schema.Str("destination account"),
		"bank_code":      schema.Str("destination bank"),
		"narration":      schema.Str("statement narration").WithDefault("Gateway transfer"),
		"reference":      schema.Str("caller idempotency reference"),
	}, "amount", "account_number", "bank_code")

	return newCategory("banking", "Account resolution, bank directory and transfers").
		op("resolveAccount", &Operation{
			Description: "Resolve an account number to its holder name",
			Schema:      resolveSchema,
		}).
		op("listBanks", &Operation{
			Description: "List supported banks with their codes",
			Schema:      schema.Object(nil),
		}).
		op("transfer", &Operation{
			Description: "Send a single bank transfer",
			Schema:      transferSchema,
			Enrich: func(in map[string]any) {
				if _, ok := in["reference"]; !ok {
					in["reference"] = fmt.Sprintf("trf_%d", time.Now().UnixMilli())
				}
			},
		}).
		vendor("bap", "bap", map[string]Mapping{
			"resolveAccount": {Tool: "validate-account-number", Transform: identity},
			"listBanks":      {Tool: "list-banks", Transform: identity},
			"transfer":       {Tool: "initiate-transfer", Transform: identity},
		})
}

func authCategory() *Category {
	verifySchema := schema.Object(map[string]*schema.Schema{
		"token": schema.Str("bearer token to verify"),
	}, "token")

	return newCategory("auth", "Identity and session verification").
		op("verifyToken", &Operation{
			Description: "Verify a bearer token against the identity service",
			Schema:      verifySchema,
		}).
		vendor("lanonasis", "supabase", map[string]Mapping{
			"verifyToken": {Tool: "auth-verify", Transform: identity},
		})
}

func memoryCategory() *Category {
	createSchema := schema.Object(map[string]*schema.Schema{
		"title":   schema.Str("memory title"),
		"content": schema.Str("memory body"),
		"type":    schema.Str("memory kind").WithDefault("context"),
		"tags":    {Type: "array", Items: schema.Str("")},
	}, "title", "content")

	searchSchema := schema.Object(map[string]*schema.Schema{
		"query": schema.Str("semantic search query"),
		"limit": {Type: "integer", Description: "max results", Default: float64(10)},
	}, "query")

	idSchema := schema.Object(map[string]*schema.Schema{
		"id": schema.Str("memory id"),
	}, "id")

	return newCategory("memory", "Memory-as-a-service storage and retrieval").
		op("createMemory", &Operation{Description: "Store a memory entry", Schema: createSchema}).
		op("searchMemories", &Operation{Description: "Semantic search over stored memories", Schema: searchSchema}).
		op("getMemory", &Operation{Description: "Fetch one memory by id", Schema: idSchema}).
		op("deleteMemory", &Operation{Description: "Delete one memory by id", Schema: idSchema}).
		vendor("lanonasis-maas", "memory", map[string]Mapping{
			"createMemory":   {Tool: "memory-create", Transform: identity},
			"searchMemories": {Tool: "memory-search", Transform: identity},
			"getMemory":      {Tool: "memory-get", Transform: identity},
			"deleteMemory":   {Tool: "memory-delete", Transform: identity},
		})
}

func aiCategory() *Category {
	chatSchema := schema.Object(map[string]*schema.Schema{
		"message": schema.Str("user message"),
		"model":   schema.Str("model override"),
		"context": {Type: "array", Items: &schema.Schema{Type: "object"}},
	}, "message")

	return newCategory("ai", "Conversational AI routed through the AI router").
		op("chat", &Operation{Description: "Single-turn chat completion", Schema: chatSchema}).
		vendor("ai-router", "ai-router", map[string]Mapping{
			"chat": {Tool: "chat-completion", Transform: identity},
		})
}

func intelligenceCategory() *Category {
	analyzeSchema := schema.Object(map[string]*schema.Schema{
		"text": schema.Str("text to analyze"),
		"mode": schema.Str("analysis mode").WithEnum("sentiment", "entities", "summary").WithDefault("summary"),
	}, "text")

	return newCategory("intelligence", "Document and text analysis").
		op("analyze", &Operation{Description: "Analyze a document or text block", Schema: analyzeSchema}).
		vendor("ai-router", "ai-router", map[string]Mapping{
			"analyze": {Tool: "analyze-text", Transform: identity},
		})
}

func securityCategory() *Category {
	createSchema := schema.Object(map[string]*schema.Schema{
		"name":  schema.Str("secret name"),
		"value": schema.Str("secret value"),
	}, "name", "value")

	nameSchema := schema.Object(map[string]*schema.Schema{
		"name": schema.Str("secret name"),
	}, "name")

	return newCategory("security", "Secret storage and retrieval").
		op("createSecret", &Operation{Description: "Store a named secret", Schema: createSchema}).
		op("getSecret", &Operation{Description: "Fetch a named secret", Schema: nameSchema}).
		vendor("vault", "vault", map[string]Mapping{
			"createSecret": {Tool: "secret-create", Transform: identity},
			"getSecret":    {Tool: "secret-get", Transform: identity},
		})
}

func verificationCategory() *Category {
	bvnSchema := schema.Object(map[string]*schema.Schema{
		"bvn": schema.Str("11-digit bank verification number"),
	}, "bvn")

	ninSchema := schema.Object(map[string]*schema.Schema{
		"nin": schema.Str("11-digit national identity number"),
	}, "nin")

	return newCategory("verification", "Identity document verification").
		op("verifyBVN", &Operation{Description: "Verify a bank verification number", Schema: bvnSchema}).
		op("verifyNIN", &Operation{Description: "Verify a national identity number", Schema: ninSchema}).
		vendor("prembly", "prembly", map[string]Mapping{
			"verifyBVN": {Tool: "verify-bvn", Transform: identity},
			"verifyNIN": {Tool: "verify-nin", Transform: identity},
		})
}

func infrastructureCategory() *Category {
	tunnelSchema := schema.Object(map[string]*schema.Schema{
		"port":     {Type: "integer", Description: "local port to expose"},
		"protocol": schema.Str("tunnel protocol").WithEnum("http", "tcp").WithDefault("http"),
	}, "port")

	return newCategory("infrastructure", "Tunnels and runtime infrastructure").
		op("createTunnel", &Operation{Description: "Open a tunnel to a local port", Schema: tunnelSchema}).
		op("listTunnels", &Operation{Description: "List active tunnels", Schema: schema.Object(nil)}).
		vendor("ngrok", "ngrok-api", map[string]Mapping{
			"createTunnel": {Tool: "create-tunnel", Transform: identity},
			"listTunnels":  {Tool: "list-tunnels", Transform: identity},
		})
}
