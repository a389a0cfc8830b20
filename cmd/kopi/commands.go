package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/kopi/internal/config"
	"github.com/kalambet/kopi/internal/ingest"
	"github.com/kalambet/kopi/internal/storage"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the assistant",
	Long: `Talk to the assistant. With a message argument, sends one turn and
prints the reply; without one, starts an interactive session.

Examples:
  kopi chat "What are the opening hours in SS2?"
  kopi chat --session 6f1c... "and the phone number?"
  kopi chat`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		verbose, _ := cmd.Flags().GetBool("verbose")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if len(args) > 0 {
			reply, err := sendChat(cmd.Context(), client, sessionID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			printReply(cmd.OutOrStdout(), reply, verbose)
			printStatus("Session", "%s", reply.SessionID)
			return nil
		}
		return chatLoop(cmd.Context(), client, cmd.InOrStdin(), cmd.OutOrStdout(), sessionID, verbose)
	},
}

func init() {
	chatCmd.Flags().String("session", "", "continue an existing session")
	chatCmd.Flags().BoolP("verbose", "v", false, "show the planner decision for each turn")
}

type chatReply struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	Status    string `json:"status"`
	Decision  struct {
		Action     string  `json:"action"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
		Rule       string  `json:"rule"`
	} `json:"decision"`
}

func sendChat(ctx context.Context, client *apiClient, sessionID, message string) (chatReply, error) {
	body := map[string]string{"message": message}
	if sessionID != "" {
		body["session_id"] = sessionID
	}

	var reply chatReply
	resp, err := client.post(ctx, "/chat", body)
	if err != nil {
		return reply, err
	}
	err = decodeJSON(resp, &reply)
	return reply, err
}

// chatLoop reads one message per line until EOF or the assistant says
// goodbye.
func chatLoop(ctx context.Context, client *apiClient, in io.Reader, out io.Writer, sessionID string, verbose bool) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, colorize(colorBold, "you> "))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(out, colorize(colorBold, "you> "))
			continue
		}

		reply, err := sendChat(ctx, client, sessionID, line)
		if err != nil {
			return err
		}
		sessionID = reply.SessionID
		printReply(out, reply, verbose)
		if reply.Decision.Action == "END" {
			return nil
		}
		fmt.Fprint(out, colorize(colorBold, "you> "))
	}
	return scanner.Err()
}

func printReply(out io.Writer, reply chatReply, verbose bool) {
	fmt.Fprintf(out, "%s %s\n", colorize(colorCyan, "kopi>"), reply.Reply)
	if verbose {
		d := reply.Decision
		fmt.Fprintf(out, "      [%s %.2f %s] %s\n", d.Action, d.Confidence, d.Rule, d.Rationale)
	}
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect or reset conversation memory",
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session's turns and remembered slots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/sessions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var snap struct {
			Turns []struct {
				Role string `json:"role"`
				Text string `json:"text"`
			} `json:"turns"`
			Slots map[string]string `json:"slots"`
		}
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, t := range snap.Turns {
			fmt.Fprintf(out, "%s %s\n", colorize(colorBold, t.Role+":"), t.Text)
		}
		for k, v := range snap.Slots {
			printStatus(k, "%s", v)
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Forget a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/sessions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Session %s deleted", args[0])
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

// --- calc ---

var calcCmd = &cobra.Command{
	Use:   "calc <expression>",
	Short: "Evaluate an arithmetic expression",
	Long: `Evaluate an arithmetic expression.

Examples:
  kopi calc "12 * (3 + 4)"
  kopi calc "2 ** 10"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runCalc(cmd.Context(), client, cmd.OutOrStdout(), strings.Join(args, " "))
	},
}

func runCalc(ctx context.Context, client *apiClient, out io.Writer, expr string) error {
	resp, err := client.get(ctx, "/calculator?expr="+url.QueryEscape(expr))
	if err != nil {
		return err
	}

	var result struct {
		Expression string          `json:"expression"`
		Result     json.RawMessage `json:"result"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s = %s\n", result.Expression, result.Result)
	return nil
}

// --- outlets ---

var outletsCmd = &cobra.Command{
	Use:   "outlets <question>",
	Short: "Ask the outlet directory a question",
	Long: `Ask the outlet directory a question in plain language.

Examples:
  kopi outlets "opening hours in SS2"
  kopi outlets --sql "how many outlets are in Petaling Jaya"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		showSQL, _ := cmd.Flags().GetBool("sql")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runOutlets(cmd.Context(), client, cmd.OutOrStdout(), strings.Join(args, " "), showSQL)
	},
}

func init() {
	outletsCmd.Flags().Bool("sql", false, "print the generated SQL")
}

func runOutlets(ctx context.Context, client *apiClient, out io.Writer, question string, showSQL bool) error {
	resp, err := client.get(ctx, "/outlets?query="+url.QueryEscape(question))
	if err != nil {
		return err
	}

	var result struct {
		Pattern    string `json:"pattern"`
		SQL        string `json:"sql"`
		Params     []any  `json:"params"`
		DisplaySQL string `json:"display_sql"`
		Summary    string `json:"summary"`
		Blocked    bool   `json:"blocked"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}

	if showSQL {
		if result.DisplaySQL != "" {
			fmt.Fprintf(out, "%s %s\n", colorize(colorCyan, result.Pattern+":"), result.DisplaySQL)
		} else {
			fmt.Fprintf(out, "%s %s %v\n", colorize(colorCyan, result.Pattern+":"), result.SQL, result.Params)
		}
	}
	if result.Blocked {
		printWarning("query was blocked by the safety check")
	}
	fmt.Fprintln(out, result.Summary)
	return nil
}

// --- products ---

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "Search or maintain the drinkware catalogue",
}

var productsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over the catalogue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topK, _ := cmd.Flags().GetInt("top-k")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runProductSearch(cmd.Context(), client, cmd.OutOrStdout(), strings.Join(args, " "), topK)
	},
}

func runProductSearch(ctx context.Context, client *apiClient, out io.Writer, query string, topK int) error {
	path := "/products?query=" + url.QueryEscape(query)
	if topK > 0 {
		path += fmt.Sprintf("&top_k=%d", topK)
	}
	resp, err := client.get(ctx, path)
	if err != nil {
		return err
	}

	var result struct {
		Products []struct {
			Name  string  `json:"name"`
			Price string  `json:"price"`
			Score float32 `json:"score"`
		} `json:"products"`
		Summary string `json:"summary"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}

	if len(result.Products) == 0 {
		fmt.Fprintln(out, result.Summary)
		return nil
	}
	for i, p := range result.Products {
		fmt.Fprintf(out, "%s %s  %s [score: %.3f]\n", colorize(colorBold, fmt.Sprintf("%d.", i+1)), p.Name, p.Price, p.Score)
	}
	return nil
}

var productsReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-embed every catalogue entry",
	Long: `Re-embed every catalogue entry with the configured embedding model.
Works directly on the local database; Ollama must be running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, appOptions{progress: os.Stderr})
		if err != nil {
			return err
		}
		defer a.Close()

		if a.indexer == nil {
			return fmt.Errorf("embedding model %s is not available", cfg.Ollama.EmbedModel)
		}
		n, err := reindexProducts(cmd.Context(), a.store, a.indexer)
		if err != nil {
			return err
		}
		printSuccess("Re-indexed %d products", n)
		return nil
	},
}

type productLister interface {
	ListProducts(ctx context.Context, limit, offset int) ([]storage.Product, error)
}

type batchIndexer interface {
	IndexBatch(ctx context.Context, products []storage.Product) (int, error)
}

func reindexProducts(ctx context.Context, store productLister, indexer batchIndexer) (int, error) {
	const page = 100
	total := 0
	for offset := 0; ; offset += page {
		products, err := store.ListProducts(ctx, page, offset)
		if err != nil {
			return total, fmt.Errorf("listing products: %w", err)
		}
		if len(products) == 0 {
			return total, nil
		}
		printStep("Embedding products %d-%d...", offset+1, offset+len(products))
		n, err := indexer.IndexBatch(ctx, products)
		total += n
		if err != nil {
			return total, err
		}
	}
}

func init() {
	productsSearchCmd.Flags().Int("top-k", 0, "maximum number of results (server default when 0)")
	productsCmd.AddCommand(productsSearchCmd)
	productsCmd.AddCommand(productsReindexCmd)
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load catalogue or outlet data from a JSON file",
	Long: `Load catalogue or outlet data into the local database.

Files hold either a JSON array or an object with a "products" or "outlets"
array. Imported products are embedded by the ingest worker of a running
server.

Examples:
  kopi import products ./drinkware.json
  kopi import outlets ./outlets.json`,
}

var importProductsCmd = &cobra.Command{
	Use:   "products <file>",
	Short: "Import catalogue entries and queue them for embedding",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLocalStore(func(store *storage.Store) error {
			n, err := importProductsFile(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			printSuccess("Queued %d products for embedding", n)
			return nil
		})
	},
}

var importOutletsCmd = &cobra.Command{
	Use:   "outlets <file>",
	Short: "Import or update outlet records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLocalStore(func(store *storage.Store) error {
			n, err := importOutletsFile(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			printSuccess("Imported %d outlets", n)
			return nil
		})
	},
}

func init() {
	importCmd.AddCommand(importProductsCmd)
	importCmd.AddCommand(importOutletsCmd)
}

func withLocalStore(fn func(*storage.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func importProductsFile(ctx context.Context, store ingest.CatalogStore, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("reading file: %w", err)
	}
	defer f.Close()

	products, err := ingest.ReadProducts(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	ids, err := ingest.ImportProducts(ctx, store, products)
	return len(ids), err
}

type outletWriter interface {
	UpsertOutlets(ctx context.Context, outlets []storage.Outlet) (int, error)
}

func importOutletsFile(ctx context.Context, store outletWriter, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("reading file: %w", err)
	}
	defer f.Close()

	outlets, err := ingest.ReadOutlets(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return store.UpsertOutlets(ctx, outlets)
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Browse the chat history",
}

var interactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		session, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		q.Set("limit", fmt.Sprint(limit))
		if session != "" {
			q.Set("session_id", session)
		}
		resp, err := client.get(cmd.Context(), "/interactions?"+q.Encode())
		if err != nil {
			return err
		}

		var interactions []struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			UserText  string `json:"user_text"`
			Action    string `json:"action"`
			Status    string `json:"status"`
		}
		if err := decodeJSON(resp, &interactions); err != nil {
			return err
		}

		if len(interactions) == 0 {
			fmt.Println("No interactions found.")
			return nil
		}

		for _, ix := range interactions {
			text := ix.UserText
			if len(text) > 80 {
				text = text[:80] + "..."
			}
			fmt.Printf("%s  %s  %-14s %s\n",
				colorize(colorCyan, shortID(ix.ID)),
				ix.CreatedAt,
				ix.Action,
				text,
			)
		}
		return nil
	},
}

var interactionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single interaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/interactions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var interaction any
		if err := decodeJSON(resp, &interaction); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(interaction)
	},
}

func init() {
	interactionsListCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
	interactionsListCmd.Flags().String("session", "", "only show turns from this session")
	interactionsCmd.AddCommand(interactionsListCmd)
	interactionsCmd.AddCommand(interactionsShowCmd)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value in " + config.FilePath() + ".\n\nValid keys: " +
		strings.Join(config.ValidKeys(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
