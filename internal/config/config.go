package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Common contains Elasticsearch parameters shared by every service. An empty
// address disables the index for the crawler.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Crawler holds configuration for the declaration crawler.
type Crawler struct {
	Common
	ListURL       string
	DocURL        string
	PermalinkBase string

	EmployerCode string
	EmployerName string

	LookbackYears  int
	PageSize       int
	ItemDelay      time.Duration
	HTTPTimeout    time.Duration
	ListMaxRetries int

	CSVPath      string
	XLSXPath     string
	ProgressPath string

	KafkaBrokers []string
	KafkaTopic   string
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr     string
	DefaultPage  int
	MaxPage      int
	ProgressPath string
}

// Reindex configures the CSV -> Elasticsearch backfill.
type Reindex struct {
	Common
	CSVPath string
}

// LoadDotEnv reads a .env file from the working directory if one exists.
// Variables already present in the environment win.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// LoadCrawler builds a Crawler config from environment variables.
func LoadCrawler() (*Crawler, error) {
	c := &Crawler{
		Common: Common{
			ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", ""),
			ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "declarations"),
		},
		ListURL:        getEnv("REGISTRY_LIST_URL", "https://public-api.nazk.gov.ua/v2/documents/list"),
		DocURL:         getEnv("REGISTRY_DOC_URL", "https://public-api.nazk.gov.ua/v2/documents/"),
		PermalinkBase:  getEnv("PERMALINK_BASE", "https://public.nazk.gov.ua/declaration/"),
		EmployerCode:   getEnv("TARGET_EMPLOYER_CODE", "00032106"),
		EmployerName:   getEnv("TARGET_EMPLOYER_NAME", "національний банк україни"),
		LookbackYears:  getInt("LOOKBACK_YEARS", 1),
		PageSize:       getInt("PAGE_SIZE", 100),
		ItemDelay:      getDuration("ITEM_DELAY", "100ms"),
		HTTPTimeout:    getDuration("HTTP_TIMEOUT", "30s"),
		ListMaxRetries: getInt("LIST_MAX_RETRIES", 3),
		CSVPath:        getEnv("CSV_PATH", "nbu_workers.csv"),
		XLSXPath:       getEnv("XLSX_PATH", "nbu_workers.xlsx"),
		ProgressPath:   getEnv("PROGRESS_PATH", "progress.json"),
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "declarations_flagged"),
	}

	if c.LookbackYears <= 0 {
		return nil, fmt.Errorf("LOOKBACK_YEARS must be positive")
	}
	if c.PageSize <= 0 {
		return nil, fmt.Errorf("PAGE_SIZE must be positive")
	}
	if c.ItemDelay < 0 {
		return nil, fmt.Errorf("ITEM_DELAY cannot be negative")
	}
	if c.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.ListMaxRetries < 0 {
		return nil, fmt.Errorf("LIST_MAX_RETRIES cannot be negative")
	}
	if c.EmployerCode == "" && c.EmployerName == "" {
		return nil, fmt.Errorf("TARGET_EMPLOYER_CODE or TARGET_EMPLOYER_NAME must be set")
	}
	if c.CSVPath == "" || c.XLSXPath == "" || c.ProgressPath == "" {
		return nil, fmt.Errorf("CSV_PATH, XLSX_PATH and PROGRESS_PATH must be set")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common: Common{
			ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
			ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "declarations"),
		},
		BindAddr:     getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage:  getInt("API_PAGE_SIZE", 20),
		MaxPage:      getInt("API_MAX_PAGE_SIZE", 100),
		ProgressPath: getEnv("PROGRESS_PATH", "progress.json"),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

// LoadReindex builds a Reindex config from environment variables.
func LoadReindex() (*Reindex, error) {
	c := &Reindex{
		Common: Common{
			ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
			ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "declarations"),
		},
		CSVPath: getEnv("CSV_PATH", "nbu_workers.csv"),
	}

	if c.CSVPath == "" {
		return nil, fmt.Errorf("CSV_PATH must be set")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
