package series

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresExtras are the optional numeric columns read from the table.
var postgresExtras = []string{
	ColUrgences,
	ColOccupancy,
	ColBedsTotal,
	ColDoctors,
	ColNurses,
	ColCareAides,
}

// PostgresSource loads the daily history from Postgres.
//
// Schema:
//
//	CREATE TABLE daily_context (
//	  date DATE PRIMARY KEY,
//	  nombre_admissions DOUBLE PRECISION NOT NULL,
//	  jour_semaine TEXT,
//	  saison TEXT,
//	  vacances_scolaires BOOLEAN NOT NULL DEFAULT FALSE,
//	  temperature_moyenne DOUBLE PRECISION,
//	  temperature_min DOUBLE PRECISION,
//	  temperature_max DOUBLE PRECISION,
//	  meteo_principale TEXT,
//	  evenement_special TEXT,
//	  impact_evenement_estime DOUBLE PRECISION,
//	  annee INTEGER,
//	  nombre_passages_urgences DOUBLE PRECISION,
//	  taux_occupation_lits DOUBLE PRECISION,
//	  lits_total DOUBLE PRECISION,
//	  nb_medecins_disponibles DOUBLE PRECISION,
//	  nb_infirmiers_disponibles DOUBLE PRECISION,
//	  nb_aides_soignants_disponibles DOUBLE PRECISION
//	);
type PostgresSource struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresSource connects to Postgres and checks the connection.
func NewPostgresSource(ctx context.Context, connStr, table string) (*PostgresSource, error) {
	if table == "" {
		table = "daily_context"
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return &PostgresSource{pool: pool, table: table}, nil
}

// Load reads the whole table ordered by date.
func (p *PostgresSource) Load(ctx context.Context) (*Series, error) {
	query := fmt.Sprintf(`
		SELECT date, nombre_admissions, jour_semaine, saison, vacances_scolaires,
		       temperature_moyenne, temperature_min, temperature_max,
		       meteo_principale, evenement_special, impact_evenement_estime, annee,
		       nombre_passages_urgences, taux_occupation_lits, lits_total,
		       nb_medecins_disponibles, nb_infirmiers_disponibles, nb_aides_soignants_disponibles
		FROM %s
		ORDER BY date
	`, p.table)

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres query failed: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			date                      time.Time
			admissions                float64
			dayName, season           *string
			holiday                   bool
			tempMean, tempMin, tempMax *float64
			weather, event            *string
			impact                    *float64
			year                      *int32
			extras                    = make([]*float64, len(postgresExtras))
		)

		dest := []any{&date, &admissions, &dayName, &season, &holiday,
			&tempMean, &tempMin, &tempMax, &weather, &event, &impact, &year}
		for i := range extras {
			dest = append(dest, &extras[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rec := Record{
			Date:       date,
			Admissions: admissions,
			DayName:    deref(dayName),
			Season:     deref(season),
			Holiday:    holiday,
			TempMean:   orNaN(tempMean),
			TempMin:    orNaN(tempMin),
			TempMax:    orNaN(tempMax),
			Weather:    deref(weather),
			Event:      deref(event),
			Impact:     orNaN(impact),
			Extra:      make(map[string]float64, len(postgresExtras)),
		}
		if year != nil {
			rec.Year = int(*year)
		}
		for i, name := range postgresExtras {
			rec.Extra[name] = orNaN(extras[i])
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres rows failed: %w", err)
	}

	extraCols := make([]string, len(postgresExtras))
	copy(extraCols, postgresExtras)
	return New(records, extraCols)
}

// Close releases the pool.
func (p *PostgresSource) Close() error {
	p.pool.Close()
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
