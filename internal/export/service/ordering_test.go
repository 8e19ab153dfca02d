package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/paymatrix/internal/clock"
	"github.com/smallbiznis/paymatrix/internal/config"
	"github.com/smallbiznis/paymatrix/internal/export/domain"
	"github.com/smallbiznis/paymatrix/internal/export/repository"
	methodsdomain "github.com/smallbiznis/paymatrix/internal/methods/domain"
	methodsrepository "github.com/smallbiznis/paymatrix/internal/methods/repository"
	methodsservice "github.com/smallbiznis/paymatrix/internal/methods/service"
	"github.com/smallbiznis/paymatrix/internal/ratelimit"
	registrydomain "github.com/smallbiznis/paymatrix/internal/registry/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type staticGateway struct {
	methods map[string]*methodsdomain.LoginMethods
}

func (g *staticGateway) FetchMethods(ctx context.Context, ref methodsdomain.LoginRef) (*methodsdomain.LoginMethods, error) {
	return g.methods[ref.Login], nil
}

func (g *staticGateway) CheckLogin(ctx context.Context, ref methodsdomain.LoginRef) (*methodsdomain.AuthCheck, error) {
	return &methodsdomain.AuthCheck{Success: true, Currency: "EUR"}, nil
}

type staticRegistry struct {
	registrydomain.Service
	groups []registrydomain.GeoGroup
}

func (r *staticRegistry) GeoGroups(ctx context.Context, code string) ([]registrydomain.GeoGroup, error) {
	return r.groups, nil
}

func TestExportOrderMatchesView(t *testing.T) {
	ctx := context.Background()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.ExportLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	var deposits []methodsdomain.MethodPair
	for _, title := range []string{
		"Visa", "Mastercard", "Skrill", "Neteller", "Trustly", "Sofort",
		"Paysafecard", "MiFinity", "Revolut", "Klarna", "Giropay", "Bank Transfer",
	} {
		deposits = append(deposits, methodsdomain.MethodPair{Title: title, Name: strings.ReplaceAll(title, " ", "_") + "_1DEP"})
	}
	deposits = append(deposits,
		methodsdomain.MethodPair{Title: "BTC - Bitcoin", Name: "Coinspaid_BTC"},
		methodsdomain.MethodPair{Title: "Crypto", Name: "Coinspaid_Crypto"},
		methodsdomain.MethodPair{Title: "USDT TRC20", Name: "Coinspaid_USDT"},
	)
	gw := &staticGateway{methods: map[string]*methodsdomain.LoginMethods{
		"de_1DEP": {
			Success:            true,
			DepositMethods:     deposits,
			WithdrawMethods:    []methodsdomain.MethodPair{{Title: "Skrill", Name: "Skrill_1DEP"}},
			RecommendedMethods: []methodsdomain.MethodPair{{Title: "Trustly", Name: "Trustly_1DEP"}},
		},
	}}
	registry := &staticRegistry{groups: []registrydomain.GeoGroup{{
		Geo:    "DE",
		Logins: []registrydomain.LoginResponse{{Project: "spin", Geo: "DE", Login: "de_1DEP"}},
	}}}

	methods := methodsservice.New(methodsservice.Params{
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Gateway:  gw,
		Store:    methodsrepository.NewMemoryStore(clk, time.Hour),
		Registry: registry,
		Policy:   config.NewStaticPolicyHolder(config.DefaultPolicyConfig()),
		Locker:   ratelimit.NewLocalLocker(clk),
	})
	sheets := &fakeSheets{}
	svc := New(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    repository.Provide(),
		Methods: methods,
		Sheets:  sheets,
	})

	run, err := methods.Load(ctx, methodsdomain.LoadRequest{Project: "spin", Geo: "DE", Env: methodsdomain.EnvProd, AddHardcoded: true})
	require.NoError(t, err)

	views, err := methods.View(ctx, methodsdomain.ViewRequest{RunID: run.RunID})
	require.NoError(t, err)
	require.Len(t, views, 1)
	rows := views[0].Rows
	require.Greater(t, len(rows), 12)

	var displayed []string
	for _, g := range rows {
		displayed = append(displayed, g.Title)
	}

	assert.True(t, rows[10].Pinned, "pinned row expected at position 10, got %s", rows[10].Title)
	firstCrypto := -1
	for i, g := range rows {
		if g.IsCrypto && firstCrypto < 0 {
			firstCrypto = i
		}
		if firstCrypto >= 0 {
			assert.True(t, g.IsCrypto, "crypto block interrupted by %s", g.Title)
		}
	}
	require.GreaterOrEqual(t, firstCrypto, 0)
	assert.Equal(t, "Crypto", rows[firstCrypto].Title)

	wb, err := svc.XLSX(ctx, domain.Request{RunID: run.RunID})
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(wb.Content))
	require.NoError(t, err)
	defer f.Close()
	cells, err := f.GetRows("DE")
	require.NoError(t, err)
	require.Len(t, cells, len(rows)+1)
	var exported []string
	for _, row := range cells[1:] {
		exported = append(exported, strings.TrimSuffix(row[0], recommendedMark))
	}
	assert.Equal(t, displayed, exported)

	_, err = svc.Sheets(ctx, domain.Request{RunID: run.RunID})
	require.NoError(t, err)
	require.Len(t, sheets.payloads, 1)
	require.Len(t, sheets.payloads[0].Sheets, 1)
	var submitted []string
	for _, row := range sheets.payloads[0].Sheets[0].Rows {
		submitted = append(submitted, strings.TrimSuffix(row.Paymethod, recommendedMark))
	}
	assert.Equal(t, displayed, submitted)
}
