package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"relator-ai/internal/adapter/convcache"
	"relator-ai/internal/domain"
	"relator-ai/internal/infra/config"
	"relator-ai/internal/infra/logger"
	"relator-ai/internal/infra/tracer"
	"relator-ai/internal/usecase"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "extrair":
		err = runExtract(args)
	case "analisar":
		err = runAnalyze(args)
	case "dispositivo":
		err = runDispositivo(args)
	case "chat":
		err = runChat(args)
	case "importar-modelos":
		err = runImportModels(args)
	case "encrypt-key":
		err = runEncryptKey(args)
	default:
		fmt.Fprintf(os.Stderr, "comando desconhecido: %s\n\nExecute 'relator --help' para ver os comandos.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, domain.UserMessageFor(err))
		fmt.Fprintf(os.Stderr, "detalhe: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`relator - assistente de minutas de decisões trabalhistas

USO:
    relator COMANDO [FLAGS]

COMANDOS:
    extrair            Extrai e ordena os tópicos a decidir dos autos
    analisar           Produz a análise estruturada de um tópico
    dispositivo        Redige o dispositivo a partir das análises
    chat               Conversa sobre os autos (histórico persistido)
    importar-modelos   Separa modelos reutilizáveis de um documento
    encrypt-key        Criptografa uma credencial para o config.yaml

FLAGS COMUNS:
    --config PATH      Arquivo de configuração (padrão: ./config.yaml)
    --autos PATH       Arquivo texto com o material dos autos

CONFIGURAÇÃO:
    Variáveis RELATOR_* sobrepõem o arquivo de configuração.
    Credenciais "enc:..." exigem RELATOR_PASSPHRASE.`)
}

// app bundles everything a command needs after wiring.
type app struct {
	cfg          *config.Config
	log          *slog.Logger
	orchestrator *usecase.Orchestrator
	store        *convcache.SQLiteStore
	janitor      *usecase.Janitor
	shutdown     func()
}

func initApp(configPath string) (*app, error) {
	var keys *config.KeyContext
	if pass := os.Getenv("RELATOR_PASSPHRASE"); pass != "" {
		keys = config.NewKeyContext(pass)
	}

	cfg, err := config.Load(configPath, keys)
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}

	shutdownTracer, err := tracer.Setup(context.Background(), cfg.Tracer)
	if err != nil {
		closeLog()
		return nil, err
	}

	provider, registry, err := buildProvider(cfg, log)
	if err != nil {
		shutdownTracer(context.Background())
		closeLog()
		return nil, err
	}

	metrics := usecase.NewTokenMetrics()
	checker := buildDoubleChecker(cfg, registry, provider, metrics, log)

	thinkingBudget := 0
	if pc, ok := cfg.Provider(cfg.LLM.DefaultProvider); ok {
		thinkingBudget = pc.ThinkingBudget
	}

	orchestrator := usecase.NewOrchestrator(provider, metrics, checker, thinkingBudget, log)

	store, err := convcache.NewSQLiteStore(cfg.Chat.DBPath)
	if err != nil {
		shutdownTracer(context.Background())
		closeLog()
		return nil, err
	}

	janitor := usecase.NewJanitor(store, cfg.Chat.ReapMaxAge, log)
	if err := janitor.Start(cfg.Chat.ReapSchedule); err != nil {
		log.Warn("chat janitor not started", "error", err)
		janitor = nil
	}

	return &app{
		cfg:          cfg,
		log:          log,
		orchestrator: orchestrator,
		store:        store,
		janitor:      janitor,
		shutdown: func() {
			if janitor != nil {
				janitor.Stop()
			}
			store.Close()
			shutdownTracer(context.Background())
			closeLog()
		},
	}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func readCaseFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("informe --autos com o arquivo do processo")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("ler autos: %w", err)
	}
	return string(data), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func runExtract(args []string) error {
	fs := flag.NewFlagSet("extrair", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "arquivo de configuração")
	casePath := fs.String("autos", "", "arquivo texto com o material dos autos")
	fs.Parse(args)

	caseText, err := readCaseFile(*casePath)
	if err != nil {
		return err
	}

	a, err := initApp(*configPath)
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx, cancel := signalContext()
	defer cancel()

	topics, report, err := a.orchestrator.ExtractTopics(ctx, caseText)
	if err != nil {
		return err
	}
	topics = a.orchestrator.OrderTopics(ctx, topics)

	out := struct {
		Topics []domain.Topic            `json:"topics"`
		Audit  *domain.CorrectionsReport `json:"audit,omitempty"`
	}{topics, report}
	return printJSON(out)
}

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analisar", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "arquivo de configuração")
	casePath := fs.String("autos", "", "arquivo texto com o material dos autos")
	title := fs.String("topico", "", "título do tópico a analisar")
	category := fs.String("categoria", domain.CategoryMerito, "categoria do tópico")
	fs.Parse(args)

	if *title == "" {
		return fmt.Errorf("informe --topico")
	}
	caseText, err := readCaseFile(*casePath)
	if err != nil {
		return err
	}

	a, err := initApp(*configPath)
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx, cancel := signalContext()
	defer cancel()

	analysis, err := a.orchestrator.AnalyzeTopic(ctx, domain.Topic{Title: *title, Category: *category}, caseText)
	if err != nil {
		return err
	}
	return printJSON(analysis)
}

func runDispositivo(args []string) error {
	fs := flag.NewFlagSet("dispositivo", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "arquivo de configuração")
	analysesPath := fs.String("analises", "", "arquivo JSON com as análises decididas")
	fs.Parse(args)

	if *analysesPath == "" {
		return fmt.Errorf("informe --analises com o arquivo JSON das análises")
	}
	data, err := os.ReadFile(*analysesPath)
	if err != nil {
		return fmt.Errorf("ler análises: %w", err)
	}
	var analyses []domain.LegalAnalysis
	if err := json.Unmarshal(data, &analyses); err != nil {
		return fmt.Errorf("interpretar análises: %w", err)
	}

	a, err := initApp(*configPath)
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx, cancel := signalContext()
	defer cancel()

	text, report, err := a.orchestrator.GenerateDispositivo(ctx, analyses)
	if err != nil {
		return err
	}
	fmt.Println(text)
	if report != nil && !report.Empty() {
		fmt.Fprintln(os.Stderr, "\n--- revisão do segundo modelo ---")
		for _, c := range report.Corrections {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", c.Type, c.Description)
		}
	}
	return nil
}

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "arquivo de configuração")
	casePath := fs.String("autos", "", "arquivo texto com o material dos autos")
	chatID := fs.String("id", "", "identificador da conversa (vazio cria uma nova)")
	fs.Parse(args)

	a, err := initApp(*configPath)
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx, cancel := signalContext()
	defer cancel()

	id := *chatID
	if id == "" {
		id = usecase.NewConversationID()
		fmt.Fprintf(os.Stderr, "conversa: %s\n", id)
	}

	chat := usecase.NewChatManager(id, a.orchestrator, a.store, a.cfg.Chat.MaxHistory, a.log)
	chat.Open(ctx)

	var builder usecase.ContextBuilder
	if *casePath != "" {
		caseText, err := readCaseFile(*casePath)
		if err != nil {
			return err
		}
		builder = func(ctx context.Context, userText string) (string, error) {
			return "Material dos autos:\n\n" + caseText + "\n\nPergunta: " + userText, nil
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	fmt.Fprintln(os.Stderr, "digite sua mensagem (ctrl-d encerra):")
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			break
		}
		reply, err := chat.Send(ctx, scanner.Text(), builder)
		if err != nil {
			fmt.Fprintln(os.Stderr, domain.UserMessageFor(err))
			continue
		}
		fmt.Println(reply)
	}
	return scanner.Err()
}

func runImportModels(args []string) error {
	fs := flag.NewFlagSet("importar-modelos", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "arquivo de configuração")
	filePath := fs.String("arquivo", "", "documento com os modelos")
	fs.Parse(args)

	if *filePath == "" {
		return fmt.Errorf("informe --arquivo")
	}
	data, err := os.ReadFile(*filePath)
	if err != nil {
		return fmt.Errorf("ler documento: %w", err)
	}

	a, err := initApp(*configPath)
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx, cancel := signalContext()
	defer cancel()

	models, err := a.orchestrator.ImportModels(ctx, string(data))
	if err != nil {
		return err
	}
	return printJSON(models)
}

// runEncryptKey produces an "enc:" value for config.yaml. The passphrase
// and the credential are read from the terminal, never from argv.
func runEncryptKey(args []string) error {
	fmt.Fprint(os.Stderr, "passphrase: ")
	pass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("ler passphrase: %w", err)
	}
	fmt.Fprint(os.Stderr, "credencial: ")
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("ler credencial: %w", err)
	}

	keys := config.NewKeyContext(strings.TrimSpace(string(pass)))
	encrypted, err := keys.Encrypt(strings.TrimSpace(string(secret)))
	if err != nil {
		return err
	}
	fmt.Println("enc:" + encrypted)
	return nil
}
