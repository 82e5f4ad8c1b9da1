package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvariant/tranchefilter/internal/tranche"
)

const testTranchesCSV = `# Variant quality score tranches file
targetTruthSensitivity,minVQSLod,filterName,model
90.00,2.0000,VQSRTrancheSNP0.00to90.00,SNP
99.00,-1.5000,VQSRTrancheSNP90.00to99.00,SNP
100.00,-5.0000,VQSRTrancheSNP99.00to100.00,SNP
`

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFormatTranches(t *testing.T) {
	parsed, err := tranche.Parse(bytes.NewReader([]byte(testTranchesCSV)))
	require.NoError(t, err)
	table, err := tranche.NewTable(parsed, 99.0)
	require.NoError(t, err)

	var buf bytes.Buffer
	formatTranches(&buf, parsed, table)

	output := buf.String()
	assert.Contains(t, output, "VQSRTrancheSNP0.00to90.00")
	assert.Contains(t, output, "VQSRTrancheSNP90.00to99.00")
	assert.Contains(t, output, "yes")
	assert.Contains(t, output, "Retention level: 99.00")
	assert.Contains(t, output, "score >= -5\t-> PASS")
	assert.Contains(t, output, "score >= -1.5\t-> VQSRTrancheSNP90.00to99.00")
	assert.Contains(t, output, "otherwise\t-> VQSRTrancheSNP90.00to99.00+")
	// The tier below the retention level never appears in the scan order.
	assert.NotContains(t, output, "score >= 2")
}

func TestTranchesCommand_EmptyFile(t *testing.T) {
	path := writeTempFile(t, "empty.csv", "")

	rootCmd.SetArgs([]string{"tranches", path, "--ts-filter-level", "99"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tranche rows")
}

func TestTranchesCommand_LevelAboveEveryTier(t *testing.T) {
	path := writeTempFile(t, "tranches.csv", testTranchesCSV)

	rootCmd.SetArgs([]string{"tranches", path, "--ts-filter-level", "100.5"})
	err := rootCmd.Execute()
	require.Error(t, err)
}
