package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"cityinfo.org/internal/cityinfo"
)

// Store is the PostgreSQL cityinfo.Store. Every unit of work is one transaction.
type Store struct {
	db *sql.DB
}

var _ cityinfo.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Begin(ctx context.Context) (cityinfo.Repository, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr(err)
	}
	return &unit{tx: tx}, nil
}

// unit stages writes inside an open transaction; nothing is visible to other
// sessions until SaveChanges commits.
type unit struct {
	tx   *sql.Tx
	done bool
}

var errDone = errors.New("unit of work already finished")

func storageErr(err error) error {
	return fmt.Errorf("%w: %w", cityinfo.ErrStorage, err)
}

func (u *unit) check() error {
	if u.done {
		return storageErr(errDone)
	}
	return nil
}

func (u *unit) CityExists(ctx context.Context, cityID int) (bool, error) {
	if err := u.check(); err != nil {
		return false, err
	}
	var ok bool
	if err := u.tx.QueryRowContext(ctx, `select exists(select 1 from cities where id = $1)`, cityID).Scan(&ok); err != nil {
		return false, storageErr(err)
	}
	return ok, nil
}

func (u *unit) GetCity(ctx context.Context, cityID int, includePointsOfInterest bool) (cityinfo.City, error) {
	if err := u.check(); err != nil {
		return cityinfo.City{}, err
	}
	var c cityinfo.City
	err := u.tx.QueryRowContext(ctx, `select id, name, description from cities where id = $1`, cityID).
		Scan(&c.ID, &c.Name, &c.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return cityinfo.City{}, cityinfo.ErrNotFound
	}
	if err != nil {
		return cityinfo.City{}, storageErr(err)
	}
	if includePointsOfInterest {
		pois, err := u.pointsOfInterest(ctx, cityID)
		if err != nil {
			return cityinfo.City{}, err
		}
		c.PointsOfInterest = pois
	}
	return c, nil
}

func (u *unit) GetCities(ctx context.Context, q cityinfo.CityQuery) ([]cityinfo.City, cityinfo.PaginationMetadata, error) {
	if err := u.check(); err != nil {
		return nil, cityinfo.PaginationMetadata{}, err
	}
	if q.PageNumber < 1 || q.PageSize < 1 {
		return nil, cityinfo.PaginationMetadata{}, fmt.Errorf("invalid page %d/%d", q.PageNumber, q.PageSize)
	}

	where, args := cityFilter(q)

	var total int
	if err := u.tx.QueryRowContext(ctx, `select count(*) from cities`+where, args...).Scan(&total); err != nil {
		return nil, cityinfo.PaginationMetadata{}, storageErr(err)
	}
	meta := cityinfo.NewPaginationMetadata(total, q.PageSize, q.PageNumber)

	args = append(args, q.PageSize, q.Offset())
	query := fmt.Sprintf(`select id, name, description from cities%s order by name, id limit $%d offset $%d`,
		where, len(args)-1, len(args))
	rows, err := u.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cityinfo.PaginationMetadata{}, storageErr(err)
	}
	defer rows.Close()

	cities := make([]cityinfo.City, 0, q.PageSize)
	for rows.Next() {
		var c cityinfo.City
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, cityinfo.PaginationMetadata{}, storageErr(err)
		}
		cities = append(cities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, cityinfo.PaginationMetadata{}, storageErr(err)
	}
	return cities, meta, nil
}

// cityFilter builds the shared where clause for the count and page queries.
func cityFilter(q cityinfo.CityQuery) (string, []any) {
	var conds []string
	var args []any
	if name := strings.TrimSpace(q.Name); name != "" {
		args = append(args, "%"+escapeLike(name)+"%")
		conds = append(conds, fmt.Sprintf(`name ilike $%d escape '\'`, len(args)))
	}
	if search := strings.TrimSpace(q.SearchQuery); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(`(name ilike $%d escape '\' or description ilike $%d escape '\')`, n, n))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " where " + strings.Join(conds, " and "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

func (u *unit) GetPointsOfInterest(ctx context.Context, cityID int) ([]cityinfo.PointOfInterest, error) {
	if err := u.check(); err != nil {
		return nil, err
	}
	ok, err := u.CityExists(ctx, cityID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cityinfo.ErrNotFound
	}
	return u.pointsOfInterest(ctx, cityID)
}

func (u *unit) pointsOfInterest(ctx context.Context, cityID int) ([]cityinfo.PointOfInterest, error) {
	rows, err := u.tx.QueryContext(ctx, `
		select id, city_id, name, description
		from points_of_interest
		where city_id = $1
		order by id
	`, cityID)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	pois := []cityinfo.PointOfInterest{}
	for rows.Next() {
		var p cityinfo.PointOfInterest
		if err := rows.Scan(&p.ID, &p.CityID, &p.Name, &p.Description); err != nil {
			return nil, storageErr(err)
		}
		pois = append(pois, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return pois, nil
}

func (u *unit) GetPointOfInterest(ctx context.Context, cityID, id int) (cityinfo.PointOfInterest, error) {
	if err := u.check(); err != nil {
		return cityinfo.PointOfInterest{}, err
	}
	var p cityinfo.PointOfInterest
	err := u.tx.QueryRowContext(ctx, `
		select id, city_id, name, description
		from points_of_interest
		where city_id = $1 and id = $2
	`, cityID, id).Scan(&p.ID, &p.CityID, &p.Name, &p.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return cityinfo.PointOfInterest{}, cityinfo.ErrNotFound
	}
	if err != nil {
		return cityinfo.PointOfInterest{}, storageErr(err)
	}
	return p, nil
}

func (u *unit) AddPointOfInterest(ctx context.Context, cityID int, poi *cityinfo.PointOfInterest) error {
	if err := u.check(); err != nil {
		return err
	}
	if poi == nil {
		return errors.New("nil point of interest")
	}
	var id int
	err := u.tx.QueryRowContext(ctx, `
		insert into points_of_interest(city_id, name, description)
		values ($1, $2, $3)
		returning id
	`, cityID, poi.Name, poi.Description).Scan(&id)
	if err != nil {
		return storageErr(err)
	}
	poi.ID = id
	poi.CityID = cityID
	return nil
}

func (u *unit) UpdatePointOfInterest(ctx context.Context, poi cityinfo.PointOfInterest) error {
	if err := u.check(); err != nil {
		return err
	}
	res, err := u.tx.ExecContext(ctx, `
		update points_of_interest set name = $1, description = $2
		where id = $3 and city_id = $4
	`, poi.Name, poi.Description, poi.ID, poi.CityID)
	return affectedOne(res, err)
}

func (u *unit) DeletePointOfInterest(ctx context.Context, poi cityinfo.PointOfInterest) error {
	if err := u.check(); err != nil {
		return err
	}
	res, err := u.tx.ExecContext(ctx, `delete from points_of_interest where id = $1 and city_id = $2`, poi.ID, poi.CityID)
	return affectedOne(res, err)
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return storageErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr(err)
	}
	if n == 0 {
		return cityinfo.ErrNotFound
	}
	return nil
}

func (u *unit) SaveChanges(ctx context.Context) error {
	if err := u.check(); err != nil {
		return err
	}
	u.done = true
	if err := ctx.Err(); err != nil {
		_ = u.tx.Rollback()
		return storageErr(err)
	}
	if err := u.tx.Commit(); err != nil {
		return storageErr(err)
	}
	return nil
}

// Close rolls back anything not yet committed.
func (u *unit) Close() error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
