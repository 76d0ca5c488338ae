package payment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseIMEConfirmationFixtures(t *testing.T) {
	cases := []struct {
		file    string
		success bool
		txn     string
	}{
		{file: "confirm_success.json", success: true, txn: "IME7788001"},
		{file: "confirm_failed.json", success: false, txn: "IME7788002"},
		{file: "confirm_status_only.json", success: true, txn: "IME7788003"},
		{file: "confirm_legacy.txt", success: true},
		{file: "confirm_legacy_failed.txt", success: false},
	}
	for _, tc := range cases {
		t.Run(tc.file, func(t *testing.T) {
			body, err := os.ReadFile(filepath.Join("testdata", "imepay", tc.file))
			require.NoError(t, err)
			got := parseIMEConfirmation(body)
			require.Equal(t, tc.success, got.Success, got.Description)
			require.Equal(t, tc.txn, got.TransactionID)
		})
	}
}

func TestParseIMEConfirmationCodeWinsOverDescription(t *testing.T) {
	got := parseIMEConfirmation([]byte(`{"ResponseCode":"2","ResponseDescription":"SUCCESS"}`))
	require.False(t, got.Success)

	got = parseIMEConfirmation([]byte(`{"ResponseCode":null,"ResponseDescription":"success"}`))
	require.True(t, got.Success)
}
