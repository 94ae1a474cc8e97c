package storage

import (
	"database/sql"
	"fmt"
	"time"

	"stock-charter/src/logger"
	"stock-charter/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresStore struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresStore(cfg *models.MConfig, log *logger.Logger) (*PostgresStore, error) {
	return &PostgresStore{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresStore initialized successfully")
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_bars (
			symbol    TEXT NOT NULL,
			timestamp BIGINT NOT NULL,
			open      DOUBLE PRECISION,
			high      DOUBLE PRECISION,
			low       DOUBLE PRECISION,
			close     DOUBLE PRECISION,
			volume    DOUBLE PRECISION,
			PRIMARY KEY (symbol, timestamp)
		);`,

		`CREATE TABLE IF NOT EXISTS fundamentals (
			symbol             TEXT PRIMARY KEY,
			market_cap         DOUBLE PRECISION,
			pe_ratio           DOUBLE PRECISION,
			dividend_yield     DOUBLE PRECISION,
			dividend_per_share DOUBLE PRECISION,
			high_52w           DOUBLE PRECISION,
			low_52w            DOUBLE PRECISION,
			beta               DOUBLE PRECISION,
			eps                DOUBLE PRECISION,
			book_value         DOUBLE PRECISION,
			profit_margin      DOUBLE PRECISION,
			operating_margin   DOUBLE PRECISION,
			updated_at         BIGINT
		);`,

		`CREATE TABLE IF NOT EXISTS income_statements (
			symbol             TEXT NOT NULL,
			fiscal_date_ending TEXT NOT NULL,
			revenue            DOUBLE PRECISION,
			operating_expenses DOUBLE PRECISION,
			net_income         DOUBLE PRECISION,
			ebitda             DOUBLE PRECISION,
			eps                DOUBLE PRECISION,
			gross_profit       DOUBLE PRECISION,
			PRIMARY KEY (symbol, fiscal_date_ending)
		);`,

		`CREATE TABLE IF NOT EXISTS update_tracking (
			symbol                 TEXT PRIMARY KEY,
			priority               INTEGER NOT NULL DEFAULT 4,
			last_price_update      BIGINT NOT NULL DEFAULT 0,
			last_overview_update   BIGINT NOT NULL DEFAULT 0,
			last_financials_update BIGINT NOT NULL DEFAULT 0,
			failure_count          INTEGER NOT NULL DEFAULT 0,
			last_error             TEXT NOT NULL DEFAULT '',
			active                 BOOLEAN NOT NULL DEFAULT TRUE,
			created_at             BIGINT NOT NULL,
			updated_at             BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_sched ON update_tracking(active, priority);`,

		`CREATE TABLE IF NOT EXISTS provider_quota (
			provider          TEXT PRIMARY KEY,
			calls_today       INTEGER NOT NULL DEFAULT 0,
			calls_this_minute INTEGER NOT NULL DEFAULT 0,
			last_call_at      BIGINT NOT NULL DEFAULT 0,
			day_reset_at      BIGINT NOT NULL DEFAULT 0,
			minute_reset_at   BIGINT NOT NULL DEFAULT 0,
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

func (d *PostgresStore) UpsertPriceBars(symbol string, bars []models.MPriceBar) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)
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

func (d *PostgresStore) GetPriceBars(symbol string) ([]models.MPriceBar, error) {
	rows, err := d.DB.Query(`
		SELECT symbol, timestamp, open, high, low, close, volume
		FROM price_bars WHERE symbol = $1 ORDER BY timestamp ASC`, symbol)
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

func (d *PostgresStore) HasPriceData(symbol string) (bool, error) {
	var one int
	err := d.DB.QueryRow(`SELECT 1 FROM price_bars WHERE symbol = $1 LIMIT 1`, symbol).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) ListSymbols() ([]string, error) {
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

func (d *PostgresStore) UpsertFundamentals(f models.MFundamentals) error {
	_, err := d.DB.Exec(`
		INSERT INTO fundamentals
			(symbol, market_cap, pe_ratio, dividend_yield, dividend_per_share,
			 high_52w, low_52w, beta, eps, book_value, profit_margin, operating_margin, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
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

func (d *PostgresStore) GetFundamentals(symbol string) (*models.MFundamentals, error) {
	var f models.MFundamentals
	err := d.DB.QueryRow(`
		SELECT symbol, market_cap, pe_ratio, dividend_yield, dividend_per_share,
		       high_52w, low_52w, beta, eps, book_value, profit_margin, operating_margin, updated_at
		FROM fundamentals WHERE symbol = $1`, symbol).Scan(
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

func (d *PostgresStore) UpsertIncomeStatements(symbol string, periods []models.MIncomeStatement) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
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

func (d *PostgresStore) GetIncomeStatements(symbol string, limit int) ([]models.MIncomeStatement, error) {
	rows, err := d.DB.Query(`
		SELECT symbol, fiscal_date_ending, revenue, operating_expenses, net_income, ebitda, eps, gross_profit
		FROM income_statements WHERE symbol = $1
		ORDER BY fiscal_date_ending DESC LIMIT $2`, symbol, limit)
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

func (d *PostgresStore) RegisterSymbol(symbol string, priority int, now time.Time) error {
	_, err := d.DB.Exec(`
		INSERT INTO update_tracking (symbol, priority, active, created_at, updated_at)
		VALUES ($1, $2, TRUE, $3, $4)
		ON CONFLICT (symbol) DO UPDATE SET
			priority   = excluded.priority,
			active     = TRUE,
			updated_at = excluded.updated_at`,
		symbol, priority, now.Unix(), now.Unix(),
	)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) GetUpdateRecord(symbol string) (*models.MUpdateRecord, error) {
	var r models.MUpdateRecord
	err := d.DB.QueryRow(`
		SELECT symbol, priority, last_price_update, last_overview_update, last_financials_update,
		       failure_count, last_error, active, created_at, updated_at
		FROM update_tracking WHERE symbol = $1`, symbol).Scan(
		&r.Symbol, &r.Priority, &r.LastPriceUpdate, &r.LastOverviewUpdate, &r.LastFinancialsUpdate,
		&r.FailureCount, &r.LastError, &r.Active, &r.CreatedAt, &r.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) StampSuccess(symbol, updateType string, now time.Time) error {
	col, err := lastUpdateColumn(updateType)
	if err != nil {
		return err
	}
	res, err := d.DB.Exec(fmt.Sprintf(`
		UPDATE update_tracking SET %s = $1, failure_count = 0, last_error = '', updated_at = $2
		WHERE symbol = $3`, col),
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

func (d *PostgresStore) StampFailure(symbol, message string, now time.Time) error {
	_, err := d.DB.Exec(`
		UPDATE update_tracking SET failure_count = failure_count + 1, last_error = $1, updated_at = $2
		WHERE symbol = $3`,
		message, now.Unix(), symbol,
	)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) ClearFailures(symbol string, now time.Time) error {
	_, err := d.DB.Exec(`
		UPDATE update_tracking SET failure_count = 0, last_error = '', updated_at = $1
		WHERE symbol = $2`,
		now.Unix(), symbol,
	)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) SetSymbolActive(symbol string, active bool, now time.Time) error {
	_, err := d.DB.Exec(`UPDATE update_tracking SET active = $1, updated_at = $2 WHERE symbol = $3`,
		active, now.Unix(), symbol)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) FindSymbolsNeedingUpdate(updateType string, cutoff time.Time, maxFailures, limit int) ([]models.MUpdateRecord, error) {
	col, err := lastUpdateColumn(updateType)
	if err != nil {
		return nil, err
	}

	rows, err := d.DB.Query(fmt.Sprintf(`
		SELECT symbol, priority, last_price_update, last_overview_update, last_financials_update,
		       failure_count, last_error, active, created_at, updated_at
		FROM update_tracking
		WHERE active = TRUE AND failure_count < $1 AND (%s = 0 OR %s < $2)
		ORDER BY priority ASC, %s ASC
		LIMIT $3`, col, col, col),
		maxFailures, cutoff.Unix(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.MUpdateRecord
	for rows.Next() {
		var r models.MUpdateRecord
		if err := rows.Scan(&r.Symbol, &r.Priority, &r.LastPriceUpdate, &r.LastOverviewUpdate,
			&r.LastFinancialsUpdate, &r.FailureCount, &r.LastError, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// -----------------------------------------------------------------------------
// Provider quota
// -----------------------------------------------------------------------------

func (d *PostgresStore) LoadQuotaState(provider string) (*models.MQuotaState, error) {
	var s models.MQuotaState
	var lastCall, dayReset, minuteReset int64
	err := d.DB.QueryRow(`
		SELECT provider, calls_today, calls_this_minute, last_call_at, day_reset_at, minute_reset_at,
		       daily_limit, minute_limit
		FROM provider_quota WHERE provider = $1`, provider).Scan(
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

func (d *PostgresStore) SaveQuotaState(s models.MQuotaState) error {
	_, err := d.DB.Exec(`
		INSERT INTO provider_quota
			(provider, calls_today, calls_this_minute, last_call_at, day_reset_at, minute_reset_at, daily_limit, minute_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
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

func (d *PostgresStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
