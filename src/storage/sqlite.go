package storage

import (
	"database/sql"
	"fmt"
	"time"

	"stock-charter/src/logger"
	"stock-charter/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteStore struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteStore(cfg *models.MConfig, log *logger.Logger) (*SQLiteStore, error) {
	return &SQLiteStore{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Initialize() error {
	dsn := d.Config.Storage.DBPath

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// WAL keeps interactive reads usable while the scheduler is writing.
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		d.Logger.Warning("Failed to set busy timeout: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) createTables() error {
	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_bars (
			symbol    TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			open      REAL,
			high      REAL,
			low       REAL,
			close     REAL,
			volume    REAL,
			PRIMARY KEY (symbol, timestamp)
		);`,

		`CREATE TABLE IF NOT EXISTS fundamentals (
			symbol             TEXT PRIMARY KEY,
			market_cap         REAL,
			pe_ratio           REAL,
			dividend_yield     REAL,
			dividend_per_share REAL,
			high_52w           REAL,
			low_52w            REAL,
			beta               REAL,
			eps                REAL,
			book_value         REAL,
			profit_margin      REAL,
			operating_margin   REAL,
			updated_at         INTEGER
		);`,

		`CREATE TABLE IF NOT EXISTS income_statements (
			symbol             TEXT NOT NULL,
			fiscal_date_ending TEXT NOT NULL,
			revenue            REAL,
			operating_expenses REAL,
			net_income         REAL,
			ebitda             REAL,
			eps                REAL,
			gross_profit       REAL,
			PRIMARY KEY (symbol, fiscal_date_ending)
		);`,

		`CREATE TABLE IF NOT EXISTS update_tracking (
			symbol                 TEXT PRIMARY KEY,
			priority               INTEGER NOT NULL DEFAULT 4,
			last_price_update      INTEGER NOT NULL DEFAULT 0,
			last_overview_update   INTEGER NOT NULL DEFAULT 0,
			last_financials_update INTEGER NOT NULL DEFAULT 0,
			failure_count          INTEGER NOT NULL DEFAULT 0,
			last_error             TEXT NOT NULL DEFAULT '',
			active                 INTEGER NOT NULL DEFAULT 1,
			created_at             INTEGER NOT NULL,
			updated_at             INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_sched ON update_tracking(active, priority);`,

		`CREATE TABLE IF NOT EXISTS provider_quota (
			provider          TEXT PRIMARY KEY,
			calls_today       INTEGER NOT NULL DEFAULT 0,
			calls_this_minute INTEGER NOT NULL DEFAULT 0,
			last_call_at      INTEGER NOT NULL DEFAULT 0,
			day_reset_at      INTEGER NOT NULL DEFAULT 0,
			minute_reset_at   INTEGER NOT NULL DEFAULT 0,
			daily_limit       INTEGER NOT NULL DEFAULT 0,
			minute_limit      INTEGER NOT NULL DEFAULT 0
		);`,
	}

	for _, s := range stmts {
		if _, err := d.DB.Exec(s); err != nil {
			return fmt.Errorf("exec %.40q: %w", s, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Price bars
// -----------------------------------------------------------------------------

func (d *SQLiteStore) UpsertPriceBars(symbol string, bars []models.MPriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO price_bars (symbol, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timestamp) DO UPDATE SET
			open   = excluded.open,
			high   = excluded.high,
			low    = excluded.low,
			close  = excluded.close,
			volume = excluded.volume
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(symbol, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) GetPriceBars(symbol string) ([]models.MPriceBar, error) {
	rows, err := d.DB.Query(`
		SELECT symbol, timestamp, open, high, low, close, volume
		FROM price_bars WHERE symbol = ? ORDER BY timestamp ASC`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []models.MPriceBar
	for rows.Next() {
		var b models.MPriceBar
		if err := rows.Scan(&b.Symbol, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) HasPriceData(symbol string) (bool, error) {
	var one int
	err := d.DB.QueryRow(`SELECT 1 FROM price_bars WHERE symbol = ? LIMIT 1`, symbol).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) ListSymbols() ([]string, error) {
	rows, err := d.DB.Query(`SELECT DISTINCT symbol FROM price_bars ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// -----------------------------------------------------------------------------
// Fundamentals
// -----------------------------------------------------------------------------

func (d *SQLiteStore) UpsertFundamentals(f models.MFundamentals) error {
	_, err := d.DB.Exec(`
		INSERT INTO fundamentals
			(symbol, market_cap, pe_ratio, dividend_yield, dividend_per_share,
			 high_52w, low_52w, beta, eps, book_value, profit_margin, operating_margin, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			market_cap         = excluded.market_cap,
			pe_ratio           = excluded.pe_ratio,
			dividend_yield     = excluded.dividend_yield,
			dividend_per_share = excluded.dividend_per_share,
			high_52w           = excluded.high_52w,
			low_52w            = excluded.low_52w,
			beta               = excluded.beta,
			eps                = excluded.eps,
			book_value         = excluded.book_value,
			profit_margin      = excluded.profit_margin,
			operating_margin   = excluded.operating_margin,
			updated_at         = excluded.updated_at`,
		f.Symbol, f.MarketCap, f.PERatio, f.DividendYield, f.DividendPerShare,
		f.High52w, f.Low52w, f.Beta, f.EPS, f.BookValue, f.ProfitMargin, f.OperatingMargin, f.UpdatedAt,
	)
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) GetFundamentals(symbol string) (*models.MFundamentals, error) {
	var f models.MFundamentals
	err := d.DB.QueryRow(`
		SELECT symbol, market_cap, pe_ratio, dividend_yield, dividend_per_share,
		       high_52w, low_52w, beta, eps, book_value, profit_margin, operating_margin, updated_at
		FROM fundamentals WHERE symbol = ?`, symbol).Scan(
		&f.Symbol, &f.MarketCap, &f.PERatio, &f.DividendYield, &f.DividendPerShare,
		&f.High52w, &f.Low52w, &f.Beta, &f.EPS, &f.BookValue, &f.ProfitMargin, &f.OperatingMargin, &f.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// -----------------------------------------------------------------------------
// Income statements
// -----------------------------------------------------------------------------

func (d *SQLiteStore) UpsertIncomeStatements(symbol string, periods []models.MIncomeStatement) error {
	if len(periods) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO income_statements
			(symbol, fiscal_date_ending, revenue, operating_expenses, net_income, ebitda, eps, gross_profit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, fiscal_date_ending) DO UPDATE SET
			revenue            = excluded.revenue,
			operating_expenses = excluded.operating_expenses,
			net_income         = excluded.net_income,
			ebitda             = excluded.ebitda,
			eps                = excluded.eps,
			gross_profit       = excluded.gross_profit
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range periods {
		if _, err := stmt.Exec(symbol, p.FiscalDateEnding, p.Revenue, p.OperatingExpenses,
			p.NetIncome, p.EBITDA, p.EPS, p.GrossProfit); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) GetIncomeStatements(symbol string, limit int) ([]models.MIncomeStatement, error) {
	rows, err := d.DB.Query(`
		SELECT symbol, fiscal_date_ending, revenue, operating_expenses, net_income, ebitda, eps, gross_profit
		FROM income_statements WHERE symbol = ?
		ORDER BY fiscal_date_ending DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []models.MIncomeStatement
	for rows.Next() {
		var p models.MIncomeStatement
		if err := rows.Scan(&p.Symbol, &p.FiscalDateEnding, &p.Revenue, &p.OperatingExpenses,
			&p.NetIncome, &p.EBITDA, &p.EPS, &p.GrossProfit); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// -----------------------------------------------------------------------------
// Update tracking
// -----------------------------------------------------------------------------

func (d *SQLiteStore) RegisterSymbol(symbol string, priority int, now time.Time) error {
	_, err := d.DB.Exec(`
		INSERT INTO update_tracking (symbol, priority, active, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			priority   = excluded.priority,
			active     = 1,
			updated_at = excluded.updated_at`,
		symbol, priority, now.Unix(), now.Unix(),
	)
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) GetUpdateRecord(symbol string) (*models.MUpdateRecord, error) {
	var r models.MUpdateRecord
	var active int
	err := d.DB.QueryRow(`
		SELECT symbol, priority, last_price_update, last_overview_update, last_financials_update,
		       failure_count, last_error, active, created_at, updated_at
		FROM update_tracking WHERE symbol = ?`, symbol).Scan(
		&r.Symbol, &r.Priority, &r.LastPriceUpdate, &r.LastOverviewUpdate, &r.LastFinancialsUpdate,
		&r.FailureCount, &r.LastError, &active, &r.CreatedAt, &r.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Active = active != 0
	return &r, nil
}

// -----------------------------------------------------------------------------

// lastUpdateColumn maps an update type to its bookkeeping column. The map
// keeps the column name out of caller-supplied strings.
func lastUpdateColumn(updateType string) (string, error) {
	switch updateType {
	case models.UpdateTypePrice:
		return "last_price_update", nil
	case models.UpdateTypeOverview:
		return "last_overview_update", nil
	case models.UpdateTypeFinancials:
		return "last_financials_update", nil
	}
	return "", fmt.Errorf("unknown update type %q", updateType)
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) StampSuccess(symbol, updateType string, now time.Time) error {
	col, err := lastUpdateColumn(updateType)
	if err != nil {
		return err
	}
	res, err := d.DB.Exec(fmt.Sprintf(`
		UPDATE update_tracking SET %s = ?, failure_count = 0, last_error = '', updated_at = ?
		WHERE symbol = ?`, col),
		now.Unix(), now.Unix(), symbol,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("symbol %s not registered", symbol)
	}
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) StampFailure(symbol, message string, now time.Time) error {
	_, err := d.DB.Exec(`
		UPDATE update_tracking SET failure_count = failure_count + 1, last_error = ?, updated_at = ?
		WHERE symbol = ?`,
		message, now.Unix(), symbol,
	)
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) ClearFailures(symbol string, now time.Time) error {
	_, err := d.DB.Exec(`
		UPDATE update_tracking SET failure_count = 0, last_error = '', updated_at = ?
		WHERE symbol = ?`,
		now.Unix(), symbol,
	)
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) SetSymbolActive(symbol string, active bool, now time.Time) error {
	flag := 0
	if active {
		flag = 1
	}
	_, err := d.DB.Exec(`UPDATE update_tracking SET active = ?, updated_at = ? WHERE symbol = ?`,
		flag, now.Unix(), symbol)
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) FindSymbolsNeedingUpdate(updateType string, cutoff time.Time, maxFailures, limit int) ([]models.MUpdateRecord, error) {
	col, err := lastUpdateColumn(updateType)
	if err != nil {
		return nil, err
	}

	rows, err := d.DB.Query(fmt.Sprintf(`
		SELECT symbol, priority, last_price_update, last_overview_update, last_financials_update,
		       failure_count, last_error, active, created_at, updated_at
		FROM update_tracking
		WHERE active = 1 AND failure_count < ? AND (%s = 0 OR %s < ?)
		ORDER BY priority ASC, %s ASC
		LIMIT ?`, col, col, col),
		maxFailures, cutoff.Unix(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.MUpdateRecord
	for rows.Next() {
		var r models.MUpdateRecord
		var active int
		if err := rows.Scan(&r.Symbol, &r.Priority, &r.LastPriceUpdate, &r.LastOverviewUpdate,
			&r.LastFinancialsUpdate, &r.FailureCount, &r.LastError, &active, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Active = active != 0
		records = append(records, r)
	}
	return records, rows.Err()
}

// -----------------------------------------------------------------------------
// Provider quota
// -----------------------------------------------------------------------------

func (d *SQLiteStore) LoadQuotaState(provider string) (*models.MQuotaState, error) {
	var s models.MQuotaState
	var lastCall, dayReset, minuteReset int64
	err := d.DB.QueryRow(`
		SELECT provider, calls_today, calls_this_minute, last_call_at, day_reset_at, minute_reset_at,
		       daily_limit, minute_limit
		FROM provider_quota WHERE provider = ?`, provider).Scan(
		&s.Provider, &s.CallsToday, &s.CallsThisMinute, &lastCall, &dayReset, &minuteReset,
		&s.DailyLimit, &s.MinuteLimit,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.LastCallAt = time.Unix(lastCall, 0)
	s.DayResetAt = time.Unix(dayReset, 0)
	s.MinuteResetAt = time.Unix(minuteReset, 0)
	return &s, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) SaveQuotaState(s models.MQuotaState) error {
	_, err := d.DB.Exec(`
		INSERT INTO provider_quota
			(provider, calls_today, calls_this_minute, last_call_at, day_reset_at, minute_reset_at, daily_limit, minute_limit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider) DO UPDATE SET
			calls_today       = excluded.calls_today,
			calls_this_minute = excluded.calls_this_minute,
			last_call_at      = excluded.last_call_at,
			day_reset_at      = excluded.day_reset_at,
			minute_reset_at   = excluded.minute_reset_at,
			daily_limit       = excluded.daily_limit,
			minute_limit      = excluded.minute_limit`,
		s.Provider, s.CallsToday, s.CallsThisMinute,
		s.LastCallAt.Unix(), s.DayResetAt.Unix(), s.MinuteResetAt.Unix(),
		s.DailyLimit, s.MinuteLimit,
	)
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
