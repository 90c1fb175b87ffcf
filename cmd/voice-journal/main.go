package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/amirk1998/voice-journal/internal/audit"
	"github.com/amirk1998/voice-journal/internal/backup"
	"github.com/amirk1998/voice-journal/internal/config"
	"github.com/amirk1998/voice-journal/internal/database"
	"github.com/amirk1998/voice-journal/internal/models"
	"github.com/amirk1998/voice-journal/internal/ratelimit"
	"github.com/amirk1998/voice-journal/internal/repository"
	"github.com/amirk1998/voice-journal/internal/security"
	"github.com/amirk1998/voice-journal/internal/service"
	"github.com/amirk1998/voice-journal/internal/session"
	"github.com/amirk1998/voice-journal/internal/vault"
	apperrors "github.com/amirk1998/voice-journal/pkg/errors"
)

type Application struct {
	config       *config.Config
	db           *sql.DB
	entryService *service.EntryService
	tagService   *service.TagService
	auditLogger  *audit.Logger
	auditMonitor *audit.Monitor
	backupMgr    *backup.Manager
	rateLimiter  *ratelimit.RateLimiter
	session      *session.Session
}

func main() {
	fmt.Println("===========================================")
	fmt.Println("  Voice Journal - Encrypted Journal Core")
	fmt.Println("===========================================")
	fmt.Println()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.cleanup()

	fmt.Println("[OK] Application initialized successfully")
	fmt.Println("[OK] Database encrypted with SQLCipher")
	fmt.Println("[OK] Device root key ready")
	fmt.Println("[OK] Audit logging enabled")
	fmt.Println()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\n\n[Shutdown] Received shutdown signal...")
		cancel()
	}()

	// Start automated backups in background
	go app.backupMgr.StartAutomatedBackups(ctx, cfg.BackupInterval)

	// Start rate limiter cleanup worker
	go app.rateLimiter.StartCleanupWorker(ctx, 1*time.Hour)

	// Start security monitoring in background
	go app.startSecurityMonitoring(ctx)

	// Run interactive CLI
	app.runCLI(ctx)
}

// initializeApplication sets up all application components
func initializeApplication(cfg *config.Config) (*Application, error) {
	// Connect to encrypted database
	dbConfig := database.Config{
		Path:          cfg.DBPath,
		EncryptionKey: cfg.DBEncryptionKey,
		MaxOpenConns:  25,
		MaxIdleConns:  5,
		MaxLifetime:   1 * time.Hour,
		MaxIdleTime:   10 * time.Minute,
	}

	db, err := database.Connect(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Run migrations
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	// Initialize audit logger
	auditLogger, err := audit.NewLogger(db, cfg.AuditLogPath, cfg.AuditAsyncMode)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
	}

	// Keystore and device root key
	keystore, err := security.NewFileKeystore(cfg.KeystoreDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize keystore: %w", err)
	}

	rootKey, err := security.GenerateRootKey(keystore)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize root key: %w", err)
	}

	// Media vault and unlock session
	mediaVault, err := vault.New(cfg.MediaDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize media vault: %w", err)
	}

	sess := session.New(mediaVault.Remove)

	// Rate limiter
	rateLimiter := ratelimit.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Repositories
	entryRepo := repository.NewEntryRepository(db)
	tagRepo := repository.NewTagRepository(db)

	// Pre-commit transcription hook
	entryRepo.SetNormalizer(service.NewTranscriptionHook(tagRepo, keystore, auditLogger))

	// Services
	tagService := service.NewTagService(tagRepo, keystore, rateLimiter, auditLogger)
	entryService := service.NewEntryService(entryRepo, tagRepo, tagService, mediaVault, sess, rootKey, rateLimiter, auditLogger)

	// Backup manager
	backupMgr, err := backup.NewManager(db, mediaVault, cfg.BackupDir, cfg.BackupEncryptionKey, cfg.BackupRetentionDays)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize backup manager: %w", err)
	}

	return &Application{
		config:       cfg,
		db:           db,
		entryService: entryService,
		tagService:   tagService,
		auditLogger:  auditLogger,
		auditMonitor: audit.NewMonitor(auditLogger),
		backupMgr:    backupMgr,
		rateLimiter:  rateLimiter,
		session:      sess,
	}, nil
}

// startSecurityMonitoring periodically runs security checks
func (app *Application) startSecurityMonitoring(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := app.auditMonitor.DetectSuspiciousActivity(); err != nil {
				log.Printf("Security monitoring error: %v", err)
			}
		}
	}
}

// runCLI runs the interactive command loop
func (app *Application) runCLI(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		printMenu()
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}

		choice := strings.TrimSpace(scanner.Text())
		fmt.Println()

		switch choice {
		case "1":
			app.createEntry(ctx, scanner)
		case "2":
			app.listEntries()
		case "3":
			app.showEntry(scanner)
		case "4":
			app.setTranscription(ctx, scanner)
		case "5":
			app.applyBaseEncryption(ctx, scanner)
		case "6":
			app.decryptBase(ctx, scanner)
		case "7":
			app.createEncryptedTag(scanner)
		case "8":
			app.applyEncryptedTag(ctx, scanner)
		case "9":
			app.unlockEntry(ctx, scanner)
		case "10":
			app.removeEncryptedTag(ctx, scanner)
		case "11":
			app.changeTagPin(scanner)
		case "12":
			app.lockSession()
		case "13":
			app.backupNow()
		case "14":
			app.deleteEntry(ctx, scanner)
		case "0", "q", "quit", "exit":
			fmt.Println("Goodbye.")
			return
		default:
			fmt.Println("Unknown option")
		}

		fmt.Println()
	}
}

func printMenu() {
	fmt.Println("--- Voice Journal ---")
	fmt.Println(" 1) New entry            2) List entries       3) Show entry")
	fmt.Println(" 4) Set transcription    5) Apply base enc     6) Decrypt base")
	fmt.Println(" 7) Create locked tag    8) Apply locked tag   9) Unlock entry")
	fmt.Println("10) Remove locked tag   11) Change tag PIN    12) Lock session")
	fmt.Println("13) Backup now          14) Delete entry       0) Quit")
}

func prompt(scanner *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

func (app *Application) createEntry(ctx context.Context, scanner *bufio.Scanner) {
	entry, err := app.entryService.CreateEntry(ctx)
	if err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}

	if audioPath := prompt(scanner, "Audio file to attach (blank to skip): "); audioPath != "" {
		data, err := os.ReadFile(audioPath)
		if err != nil {
			fmt.Printf("[Error] failed to read audio file: %v\n", err)
		} else if err := app.entryService.AttachAudio(ctx, entry, fmt.Sprintf("%s.m4a", entry.ID), data, 0); err != nil {
			fmt.Printf("[Error] %v\n", err)
		} else {
			fmt.Println("[OK] Audio attached")
		}
	}

	fmt.Printf("[OK] Entry created: %s\n", entry.ID)
}

func (app *Application) listEntries() {
	entries, err := app.entryService.ListEntries(models.ListEntriesFilters{Limit: 50})
	if err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}

	if len(entries) == 0 {
		fmt.Println("No entries yet.")
		return
	}

	for _, e := range entries {
		tagState := ""
		if e.EncryptedTagID != nil {
			tagState = " [locked]"
		}
		fmt.Printf("%s  %s  state=%s%s\n", e.ID, e.CreatedAt.Format("2006-01-02 15:04"), e.EncryptionState(), tagState)
	}
}

func (app *Application) showEntry(scanner *bufio.Scanner) {
	id := prompt(scanner, "Entry ID: ")
	entry, err := app.entryService.GetEntry(id)
	if err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}

	fmt.Printf("Entry %s\n", entry.ID)
	fmt.Printf("  created:             %s\n", entry.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  state:               %s\n", entry.EncryptionState())
	fmt.Printf("  hasEncryptedContent: %v\n", entry.HasEncryptedContent())
	fmt.Printf("  needsDualDecryption: %v\n", entry.NeedsDualDecryption())
	fmt.Printf("  baseDecrypted:       %v\n", app.entryService.IsBaseDecrypted(entry.ID))
	fmt.Printf("  tagDecrypted:        %v\n", app.entryService.IsDecrypted(entry.ID))

	if entry.Audio != nil {
		fmt.Printf("  audio: %s (%.1fs, %d bytes, encrypted=%v)\n",
			entry.Audio.FilePath, entry.Audio.Duration, entry.Audio.FileSize, entry.Audio.IsEncrypted)
	}

	if entry.Transcription != nil {
		for _, p := range entry.Transcription.FieldPairs() {
			switch {
			case *p.Plaintext != nil:
				fmt.Printf("  %s: %s\n", p.Name, **p.Plaintext)
			case *p.Ciphertext != nil:
				fmt.Printf("  %s: <encrypted>\n", p.Name)
			}
		}
	}

	for _, t := range entry.Tags {
		fmt.Printf("  tag: %s (encrypted=%v)\n", t.Name, t.IsEncrypted)
	}
}

func (app *Application) setTranscription(ctx context.Context, scanner *bufio.Scanner) {
	id := prompt(scanner, "Entry ID: ")
	entry, err := app.entryService.GetEntry(id)
	if err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}

	field := prompt(scanner, "Field (text/raw_text/enhanced_text/ai_analysis): ")
	text := prompt(scanner, "Text: ")

	if err := app.entryService.SetTranscriptionField(ctx, entry, field, text); err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}
	fmt.Println("[OK] Transcription saved")
}

func (app *Application) applyBaseEncryption(ctx context.Context, scanner *bufio.Scanner) {
	id := prompt(scanner, "Entry ID: ")
	entry, err := app.entryService.GetEntry(id)
	if err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}

	if err := app.entryService.ApplyBaseEncryption(ctx, entry); err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}
	fmt.Println("[OK] Base encryption applied")
}

func (app *Application) decryptBase(ctx context.Context, scanner *bufio.Scanner) {
	id := prompt(scanner, "Entry ID: ")
	entry, err := app.entryService.GetEntry(id)
	if err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}

	if entry.NeedsDualDecryption() && !app.entryService.IsDecrypted(entry.ID) {
		fmt.Println("[Note] Entry is dual-encrypted; unlock the tag layer first (option 9)")
	}

	if err := app.entryService.DecryptBaseContent(ctx, entry); err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}

	fmt.Println("[OK] Base content decrypted for this session")
	app.printPlaintext(entry)
}

func (app *Application) createEncryptedTag(scanner *bufio.Scanner) {
	name := prompt(scanner, "Tag name: ")

	tag, err := app.tagService.GetTag(name)
	if err != nil {
		tag, err = app.tagService.CreateTag(name)
		if err != nil {
			fmt.Printf("[Error] %v\n", err)
			return
		}
	}

	pin := prompt(scanner, "PIN (min 4 chars): ")
	if err := app.tagService.SetEncryptionPin(tag, pin); err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}
	fmt.Printf("[OK] Tag %q is now an encryption gate\n", tag.Name)
}

func (app *Application) applyEncryptedTag(ctx context.Context, scanner *bufio.Scanner) {
	id := prompt(scanner, "Entry ID: ")
	entry, err := app.entryService.GetEntry(id)
	if err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}

	name := prompt(scanner, "Tag name: ")
	tag, err := app.tagService.GetTag(name)
	if err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}

	pin := prompt(scanner, "PIN: ")
	if err := app.entryService.ApplyEncryptedTagWithPin(ctx, entry, tag, pin); err != nil {
		printUserError(err)
		return
	}
	fmt.Println("[OK] Entry locked behind tag")
}

func (app *Application) unlockEntry(ctx context.Context, scanner *bufio.Scanner) {
	id := prompt(scanner, "Entry ID: ")
	entry, err := app.entryService.GetEntry(id)
	if err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}

	pin := prompt(scanner, "PIN: ")
	if err := app.entryService.DecryptContent(ctx, entry, pin); err != nil {
		printUserError(err)
		return
	}

	fmt.Println("[OK] Entry unlocked for this session")
	app.printPlaintext(entry)
}

func (app *Application) removeEncryptedTag(ctx context.Context, scanner *bufio.Scanner) {
	id := prompt(scanner, "Entry ID: ")
	entry, err := app.entryService.GetEntry(id)
	if err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}

	pin := prompt(scanner, "PIN: ")
	if err := app.entryService.RemoveEncryptedTag(ctx, entry, pin); err != nil {
		printUserError(err)
		return
	}
	fmt.Println("[OK] Tag encryption removed from entry")
}

func (app *Application) changeTagPin(scanner *bufio.Scanner) {
	name := prompt(scanner, "Tag name: ")
	tag, err := app.tagService.GetTag(name)
	if err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}

	current := prompt(scanner, "Current PIN: ")
	newPin := prompt(scanner, "New PIN: ")

	if err := app.tagService.ChangePin(tag, current, newPin); err != nil {
		printUserError(err)
		return
	}
	fmt.Println("[OK] PIN changed; existing content stays decryptable")
}

func (app *Application) lockSession() {
	app.entryService.ClearAllDecryptedEntries()
	fmt.Println("[OK] Session locked; temp decrypted files removed")
}

func (app *Application) backupNow() {
	path, err := app.backupMgr.CreateBackup()
	if err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}

	if err := app.backupMgr.VerifyBackup(path); err != nil {
		fmt.Printf("[Error] backup verification failed: %v\n", err)
		return
	}
	fmt.Printf("[OK] Backup verified: %s\n", path)
}

func (app *Application) deleteEntry(ctx context.Context, scanner *bufio.Scanner) {
	id := prompt(scanner, "Entry ID: ")
	entry, err := app.entryService.GetEntry(id)
	if err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}

	if confirm := prompt(scanner, "Delete entry and all ciphertext files? (yes/no): "); confirm != "yes" {
		fmt.Println("Cancelled")
		return
	}

	if err := app.entryService.DeleteEntry(ctx, entry); err != nil {
		fmt.Printf("[Error] %v\n", err)
		return
	}
	fmt.Println("[OK] Entry deleted")
}

func (app *Application) printPlaintext(entry *models.JournalEntry) {
	if entry.Transcription == nil {
		return
	}
	for _, p := range entry.Transcription.FieldPairs() {
		if *p.Plaintext != nil {
			fmt.Printf("  %s: %s\n", p.Name, **p.Plaintext)
		}
	}
}

func printUserError(err error) {
	if apperrors.IsRecoverable(err) {
		fmt.Printf("[Denied] %v\n", err)
		return
	}
	fmt.Printf("[Error] %v\n", err)
}

// cleanup releases application resources
func (app *Application) cleanup() {
	app.session.ClearAll()

	if app.auditLogger != nil {
		app.auditLogger.Close()
	}

	if app.db != nil {
		app.db.Close()
	}
}
