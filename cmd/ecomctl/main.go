package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"ecomchain/crypto"
	"ecomchain/rpc"
)

const defaultEndpoint = "http://localhost:8545"

// command maps CLI flags onto the parameter object of one RPC method. Flags
// left empty are omitted from the request.
type command struct {
	method  string
	usage   string
	params  []param
	numeric []param
}

type param struct {
	flag string
	key  string
	help string
}

var commands = map[string]command{
	"create-payment": {method: "commerce_createPayment", usage: "open a pending payment for the caller", params: []param{
		{"amount", "amount", "payment amount in base units"},
		{"method", "method", "funding method (native or token)"},
		{"product", "product", "optional product address"},
	}},
	"close-payment": {method: "commerce_closePayment", usage: "close a settled payment", params: []param{
		{"payment-ref", "paymentRef", "payment reference"},
	}},
	"create-escrow": {method: "commerce_createEscrow", usage: "bind an escrow to the caller's payment", params: []param{
		{"buyer", "buyer", "buyer address"},
		{"seller", "seller", "seller address"},
		{"amount", "amount", "escrow amount in base units"},
		{"payment-ref", "paymentRef", "payment reference"},
	}},
	"deposit": {method: "commerce_depositEscrow", usage: "fund an escrow vault", params: []param{
		{"escrow-ref", "escrowRef", "escrow reference"},
		{"payment-ref", "paymentRef", "payment reference"},
		{"source", "source", "funding account (defaults to the caller)"},
	}},
	"withdraw": {method: "commerce_withdrawEscrow", usage: "release escrowed funds to the seller", params: []param{
		{"escrow-ref", "escrowRef", "escrow reference"},
		{"payment-ref", "paymentRef", "payment reference"},
		{"destination", "destination", "seller address"},
	}},
	"refund": {method: "commerce_refundEscrow", usage: "return escrowed funds after the refund window", params: []param{
		{"escrow-ref", "escrowRef", "escrow reference"},
		{"payment-ref", "paymentRef", "payment reference"},
	}},
	"close-escrow": {method: "commerce_closeEscrow", usage: "close a settled escrow", params: []param{
		{"escrow-ref", "escrowRef", "escrow reference"},
	}},
	"close-all": {method: "commerce_closeAll", usage: "close a settled escrow and its payment", params: []param{
		{"escrow-ref", "escrowRef", "escrow reference"},
		{"payment-ref", "paymentRef", "payment reference"},
	}},
	"force-close-all": {method: "commerce_forceCloseAll", usage: "administratively close an escrow and payment", params: []param{
		{"escrow-ref", "escrowRef", "escrow reference"},
		{"payment-ref", "paymentRef", "payment reference"},
	}},
	"create-order": {method: "commerce_createOrder", usage: "place an order for a payment", params: []param{
		{"payment-ref", "paymentRef", "payment reference"},
	}},
	"update-order": {method: "commerce_updateOrder", usage: "advance order tracking", params: []param{
		{"order-ref", "orderRef", "order reference"},
		{"tracking", "tracking", "in_transit, shipped, out_for_delivery or delivered"},
	}},
	"close-order": {method: "commerce_closeOrder", usage: "close an order", params: []param{
		{"order-ref", "orderRef", "order reference"},
	}},
	"get-payment": {method: "commerce_getPayment", usage: "show a payment", params: []param{{"ref", "ref", "payment reference"}}},
	"get-escrow":  {method: "commerce_getEscrow", usage: "show an escrow and its vault balance", params: []param{{"ref", "ref", "escrow reference"}}},
	"get-order":   {method: "commerce_getOrder", usage: "show an order", params: []param{{"ref", "ref", "order reference"}}},
	"balance":     {method: "commerce_getBalance", usage: "show an account balance", params: []param{{"address", "address", "account address"}}},
	"derive": {method: "commerce_deriveRefs", usage: "derive record references for an owner", params: []param{
		{"owner", "owner", "owner address"},
		{"signer", "signer", "order signer (defaults to owner)"},
		{"payment-id", "paymentId", "payment id for order derivation"},
	}},
	"state-root": {method: "commerce_stateRoot", usage: "show the ledger commitment root"},
	"events": {method: "commerce_listEvents", usage: "list committed events", params: []param{
		{"type", "type", "event type"},
		{"ref", "ref", "record reference"},
		{"tx-ref", "txRef", "transaction reference"},
		{"owner", "owner", "owner or placer address"},
	}, numeric: []param{
		{"after", "after", "only events after this sequence"},
		{"limit", "limit", "maximum events to return"},
	}},
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	global := flag.NewFlagSet("ecomctl", flag.ContinueOnError)
	endpoint := global.String("rpc", envOr("ECOM_RPC_URL", defaultEndpoint), "JSON-RPC endpoint")
	token := global.String("token", os.Getenv("ECOM_RPC_TOKEN"), "bearer token for mutating methods")
	global.Usage = func() { printUsage(global.Output()) }
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		printUsage(out)
		return nil
	}
	name, cmdArgs := rest[0], rest[1:]
	if name == "token" {
		return issueToken(cmdArgs, out)
	}
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	params, err := cmd.parse(name, cmdArgs)
	if err != nil {
		return err
	}
	result, err := call(*endpoint, *token, cmd.method, params)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func (c command) parse(name string, args []string) (map[string]interface{}, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	strs := make(map[string]*string, len(c.params))
	for _, p := range c.params {
		strs[p.key] = fs.String(p.flag, "", p.help)
	}
	nums := make(map[string]*uint64, len(c.numeric))
	for _, p := range c.numeric {
		nums[p.key] = fs.Uint64(p.flag, 0, p.help)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	params := make(map[string]interface{})
	for key, value := range strs {
		if trimmed := strings.TrimSpace(*value); trimmed != "" {
			params[key] = trimmed
		}
	}
	for key, value := range nums {
		if *value > 0 {
			params[key] = *value
		}
	}
	return params, nil
}

func call(endpoint, token, method string, params map[string]interface{}) (json.RawMessage, error) {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{params},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(endpoint, "/")+"/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not connect to node at %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *rpc.RPCError   `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		if decoded.Error.Data != nil {
			return nil, fmt.Errorf("%s (code %d, %v)", decoded.Error.Message, decoded.Error.Code, decoded.Error.Data)
		}
		return nil, fmt.Errorf("%s (code %d)", decoded.Error.Message, decoded.Error.Code)
	}
	return decoded.Result, nil
}

// issueToken signs a caller token locally from the node's shared secret.
func issueToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	secret := fs.String("secret", os.Getenv("ECOM_RPC_SECRET"), "HMAC signing secret")
	issuer := fs.String("issuer", "ecomchain", "token issuer")
	address := fs.String("address", "", "caller address")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := crypto.ParseAddress(*address)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	token, err := rpc.IssueToken(*secret, *issuer, addr, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: ecomctl [--rpc URL] [--token TOKEN] <command> [flags]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintf(w, "  %-16s %s\n", "token", "sign a caller token with the node secret")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-16s %s\n", name, commands[name].usage)
	}
}
