package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"ledger-core/internal/config"
	"ledger-core/internal/server"
)

type IntegrationTestSuite struct {
	suite.Suite
	postgresContainer *postgres.PostgresContainer
	serverInstance    *server.Server
	baseURL           string
	client            *http.Client

	// ids created by earlier steps
	aliceID     string
	bobID       string
	carolID     string
	bobNumber   string
	transferTx  string
	emptyAcctID string
}

func (suite *IntegrationTestSuite) SetupSuite() {
	if testing.Short() {
		suite.T().Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("ledger"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		suite.T().Fatalf("Failed to start postgres container: %s", err)
	}
	suite.postgresContainer = postgresContainer

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		suite.T().Fatalf("Failed to get container host: %s", err)
	}
	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		suite.T().Fatalf("Failed to get mapped port: %s", err)
	}

	cfg := &config.Config{
		ServerPort:    "0", // Let OS choose a free port
		StorageDriver: config.StoragePostgres,
		DBHost:        host,
		DBPort:        port.Port(),
		DBUser:        "postgres",
		DBPassword:    "password",
		DBName:        "ledger",
		DBSSLMode:     "disable",
		AuditDriver:   config.AuditPostgres,
		MaxRetries:    10,
		RetryInterval: 5 * time.Millisecond,
	}

	serverInstance, serverPort, err := server.StartServer(cfg)
	if err != nil {
		suite.T().Fatalf("Failed to start application server: %s", err)
	}
	suite.serverInstance = serverInstance
	suite.baseURL = "http://localhost:" + serverPort
	suite.client = &http.Client{Timeout: 30 * time.Second}

	if err := suite.waitForServerReady(); err != nil {
		suite.T().Fatal(err)
	}
}

func (suite *IntegrationTestSuite) waitForServerReady() error {
	timeout := 30 * time.Second
	start := time.Now()

	for time.Since(start) < timeout {
		resp, err := http.Get(suite.baseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %v", timeout)
}

func (suite *IntegrationTestSuite) TearDownSuite() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if suite.serverInstance != nil {
		suite.serverInstance.Stop(ctx)
	}

	if suite.postgresContainer != nil {
		testcontainers.TerminateContainer(suite.postgresContainer)
	}
}

// do sends a JSON request and returns the status and the decoded envelope.
func (suite *IntegrationTestSuite) do(method, path string, payload interface{}) (int, map[string]interface{}) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(suite.T(), err)
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, suite.baseURL+path, body)
	require.NoError(suite.T(), err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := suite.client.Do(req)
	require.NoError(suite.T(), err)
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var envelope map[string]interface{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		suite.T().Logf("Failed to parse response: %s", raw)
	}
	return resp.StatusCode, envelope
}

func data(envelope map[string]interface{}) map[string]interface{} {
	d, _ := envelope["data"].(map[string]interface{})
	return d
}

func list(envelope map[string]interface{}) []interface{} {
	l, _ := envelope["data"].([]interface{})
	return l
}

func errorCode(envelope map[string]interface{}) string {
	e, _ := envelope["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func (suite *IntegrationTestSuite) createAccount(userID, accountType, balance string) map[string]interface{} {
	status, env := suite.do(http.MethodPost, "/accounts", map[string]string{
		"user_id":         userID,
		"account_type":    accountType,
		"initial_balance": balance,
	})
	require.Equal(suite.T(), http.StatusCreated, status, "create account: %v", env)
	return data(env)
}

func (suite *IntegrationTestSuite) balanceOf(accountID string) decimal.Decimal {
	status, env := suite.do(http.MethodGet, "/accounts/"+accountID, nil)
	require.Equal(suite.T(), http.StatusOK, status)
	return decimal.RequireFromString(data(env)["balance"].(string))
}

func (suite *IntegrationTestSuite) assertBalance(expected, accountID string) {
	actual := suite.balanceOf(accountID)
	assert.True(suite.T(), decimal.RequireFromString(expected).Equal(actual),
		"balance of %s: expected %s, got %s", accountID, expected, actual)
}

// ------------------------------------------------------------------
// Steps run in the order TestFlow invokes them and share state
// through the suite fields.
// ------------------------------------------------------------------

func (suite *IntegrationTestSuite) stepHealthCheck() {
	resp, err := suite.client.Get(suite.baseURL + "/health")
	require.NoError(suite.T(), err)
	defer resp.Body.Close()
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(suite.T(), json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(suite.T(), "healthy", health["status"])
}

func (suite *IntegrationTestSuite) stepCreateAccounts() {
	alice := suite.createAccount("alice", "checking", "1000.50")
	bob := suite.createAccount("bob", "savings", "500.25")
	carol := suite.createAccount("carol", "checking", "0")
	empty := suite.createAccount("alice", "savings", "")

	suite.aliceID = alice["account_id"].(string)
	suite.bobID = bob["account_id"].(string)
	suite.bobNumber = bob["account_number"].(string)
	suite.carolID = carol["account_id"].(string)
	suite.emptyAcctID = empty["account_id"].(string)

	assert.Equal(suite.T(), true, alice["active"])
	assert.Len(suite.T(), suite.bobNumber, 12)
	suite.assertBalance("1000.50", suite.aliceID)

	// opening balance is booked as an initial deposit
	status, env := suite.do(http.MethodGet, "/accounts/"+suite.aliceID+"/transactions", nil)
	assert.Equal(suite.T(), http.StatusOK, status)
	txs := list(env)
	require.Len(suite.T(), txs, 1)
	assert.Equal(suite.T(), "initial deposit", txs[0].(map[string]interface{})["description"])

	status, env = suite.do(http.MethodGet, "/accounts/"+suite.carolID+"/transactions", nil)
	assert.Equal(suite.T(), http.StatusOK, status)
	assert.Empty(suite.T(), list(env))

	status, env = suite.do(http.MethodGet, "/accounts?user_id=alice", nil)
	assert.Equal(suite.T(), http.StatusOK, status)
	assert.Len(suite.T(), list(env), 2)
}

func (suite *IntegrationTestSuite) stepDepositAndWithdraw() {
	status, env := suite.do(http.MethodPost, "/accounts/"+suite.carolID+"/deposit", map[string]string{"amount": "75.00"})
	require.Equal(suite.T(), http.StatusCreated, status, "%v", env)
	receipt := data(env)
	assert.NotEmpty(suite.T(), receipt["transaction_id"])
	assert.NotEmpty(suite.T(), receipt["transaction_hash"])

	status, env = suite.do(http.MethodPost, "/accounts/"+suite.carolID+"/withdraw", map[string]string{"amount": "25.00"})
	require.Equal(suite.T(), http.StatusCreated, status, "%v", env)
	suite.assertBalance("50.00", suite.carolID)

	status, env = suite.do(http.MethodPost, "/accounts/"+suite.carolID+"/withdraw", map[string]string{"amount": "50.01"})
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, status)
	assert.Equal(suite.T(), "insufficient_funds", errorCode(env))
	suite.assertBalance("50.00", suite.carolID)
}

func (suite *IntegrationTestSuite) stepSuccessfulTransfer() {
	status, env := suite.do(http.MethodPost, "/transfers", map[string]string{
		"from_account_id": suite.aliceID,
		"to_account_id":   suite.bobID,
		"amount":          "200.50",
	})
	require.Equal(suite.T(), http.StatusCreated, status, "%v", env)

	receipt := data(env)
	suite.transferTx = receipt["transaction_id"].(string)
	assert.NotEmpty(suite.T(), receipt["credit_transaction_id"])

	suite.assertBalance("800.00", suite.aliceID)
	suite.assertBalance("700.75", suite.bobID)

	status, env = suite.do(http.MethodGet, "/transactions/"+suite.transferTx, nil)
	assert.Equal(suite.T(), http.StatusOK, status)
	assert.Equal(suite.T(), "transfer", data(env)["transaction_type"])
	assert.Equal(suite.T(), suite.bobID, data(env)["destination_account_id"])
}

func (suite *IntegrationTestSuite) stepTransferByNumber() {
	status, env := suite.do(http.MethodPost, "/transfers/by-number", map[string]string{
		"from_account_id":   suite.aliceID,
		"to_account_number": suite.bobNumber,
		"amount":            "100",
	})
	require.Equal(suite.T(), http.StatusCreated, status, "%v", env)

	suite.assertBalance("700.00", suite.aliceID)
	suite.assertBalance("800.75", suite.bobID)
}

func (suite *IntegrationTestSuite) stepMultiTransfer() {
	status, env := suite.do(http.MethodPost, "/transfers/multi", map[string]interface{}{
		"from_account_id": suite.aliceID,
		"transfers": []map[string]string{
			{"to_account_id": suite.bobID, "amount": "10"},
			{"to_account_id": suite.carolID, "amount": "20"},
		},
	})
	require.Equal(suite.T(), http.StatusCreated, status, "%v", env)
	assert.Len(suite.T(), list(env), 2)

	suite.assertBalance("670.00", suite.aliceID)
	suite.assertBalance("810.75", suite.bobID)
	suite.assertBalance("70.00", suite.carolID)

	// aggregate exceeds balance even though each leg fits
	status, env = suite.do(http.MethodPost, "/transfers/multi", map[string]interface{}{
		"from_account_id": suite.aliceID,
		"transfers": []map[string]string{
			{"to_account_id": suite.bobID, "amount": "400"},
			{"to_account_id": suite.carolID, "amount": "400"},
		},
	})
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, status)
	assert.Equal(suite.T(), "insufficient_funds", errorCode(env))
	suite.assertBalance("670.00", suite.aliceID)
}

func (suite *IntegrationTestSuite) stepConcurrentOpposingTransfers() {
	start := suite.balanceOf(suite.aliceID).Add(suite.balanceOf(suite.bobID))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			suite.do(http.MethodPost, "/transfers", map[string]string{
				"from_account_id": suite.aliceID, "to_account_id": suite.bobID, "amount": "1",
			})
		}()
		go func() {
			defer wg.Done()
			suite.do(http.MethodPost, "/transfers", map[string]string{
				"from_account_id": suite.bobID, "to_account_id": suite.aliceID, "amount": "1",
			})
		}()
	}
	wg.Wait()

	end := suite.balanceOf(suite.aliceID).Add(suite.balanceOf(suite.bobID))
	assert.True(suite.T(), start.Equal(end), "money created or destroyed: %s -> %s", start, end)
}

func (suite *IntegrationTestSuite) stepRejectedTransfers() {
	cases := []struct {
		name   string
		body   map[string]string
		status int
		code   string
	}{
		{"same account", map[string]string{"from_account_id": suite.aliceID, "to_account_id": suite.aliceID, "amount": "1"}, http.StatusBadRequest, "same_account_transfer"},
		{"negative amount", map[string]string{"from_account_id": suite.aliceID, "to_account_id": suite.bobID, "amount": "-1"}, http.StatusBadRequest, "invalid_amount"},
		{"zero amount", map[string]string{"from_account_id": suite.aliceID, "to_account_id": suite.bobID, "amount": "0.00"}, http.StatusBadRequest, "invalid_amount"},
		{"insufficient", map[string]string{"from_account_id": suite.aliceID, "to_account_id": suite.bobID, "amount": "10000"}, http.StatusUnprocessableEntity, "insufficient_funds"},
		{"unknown destination", map[string]string{"from_account_id": suite.aliceID, "to_account_id": "missing", "amount": "1"}, http.StatusNotFound, "account_not_found"},
	}

	for _, tc := range cases {
		status, env := suite.do(http.MethodPost, "/transfers", tc.body)
		assert.Equal(suite.T(), tc.status, status, tc.name)
		assert.Equal(suite.T(), tc.code, errorCode(env), tc.name)
	}
}

func (suite *IntegrationTestSuite) stepUpdateAccount() {
	status, env := suite.do(http.MethodPatch, "/accounts/"+suite.carolID, map[string]string{"account_type": "savings"})
	require.Equal(suite.T(), http.StatusOK, status, "%v", env)
	assert.Equal(suite.T(), "savings", data(env)["account_type"])

	status, env = suite.do(http.MethodPatch, "/accounts/"+suite.carolID, map[string]interface{}{"balance": 1000000})
	assert.Equal(suite.T(), http.StatusBadRequest, status)
	assert.Equal(suite.T(), "immutable_field", errorCode(env))
	suite.assertBalance("70.00", suite.carolID)
}

func (suite *IntegrationTestSuite) stepCloseAccount() {
	status, env := suite.do(http.MethodPost, "/accounts/"+suite.carolID+"/close", nil)
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, status)
	assert.Equal(suite.T(), "non_zero_balance", errorCode(env))

	status, env = suite.do(http.MethodPost, "/accounts/"+suite.emptyAcctID+"/close", nil)
	require.Equal(suite.T(), http.StatusOK, status, "%v", env)
	assert.Equal(suite.T(), false, data(env)["active"])

	status, env = suite.do(http.MethodPost, "/accounts/"+suite.emptyAcctID+"/deposit", map[string]string{"amount": "5"})
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, status)
	assert.Equal(suite.T(), "account_inactive", errorCode(env))
}

func (suite *IntegrationTestSuite) stepAuditTrail() {
	status, env := suite.do(http.MethodGet, "/audit/fingerprints/"+suite.transferTx, nil)
	require.Equal(suite.T(), http.StatusOK, status, "%v", env)
	entry := data(env)
	assert.Len(suite.T(), entry["hash"], 64)
	assert.Equal(suite.T(), suite.aliceID, entry["from_account_id"])
	assert.Equal(suite.T(), suite.bobID, entry["to_account_id"])

	status, env = suite.do(http.MethodGet, "/audit/fingerprints/"+suite.transferTx+"/verify", nil)
	assert.Equal(suite.T(), http.StatusOK, status)
	assert.Equal(suite.T(), true, data(env)["matches"])

	status, env = suite.do(http.MethodGet, "/audit/fingerprints?limit=3", nil)
	assert.Equal(suite.T(), http.StatusOK, status)
	assert.Len(suite.T(), list(env), 3)

	status, env = suite.do(http.MethodGet, "/audit/fingerprints/unknown", nil)
	assert.Equal(suite.T(), http.StatusNotFound, status)
	assert.Equal(suite.T(), "fingerprint_not_found", errorCode(env))
}

func (suite *IntegrationTestSuite) TestFlow() {
	suite.stepHealthCheck()
	suite.stepCreateAccounts()
	suite.stepDepositAndWithdraw()
	suite.stepSuccessfulTransfer()
	suite.stepTransferByNumber()
	suite.stepMultiTransfer()
	suite.stepConcurrentOpposingTransfers()
	suite.stepRejectedTransfers()
	suite.stepUpdateAccount()
	suite.stepCloseAccount()
	suite.stepAuditTrail()
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}
