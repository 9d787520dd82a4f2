package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/Veraticus/statement-reconciler/internal/service"
	"github.com/Veraticus/statement-reconciler/internal/testutil"
)

type testEnv struct {
	t       *testing.T
	dir     string
	cfgPath string
	dbPath  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		t:       t,
		dir:     dir,
		cfgPath: filepath.Join(dir, "config.yaml"),
		dbPath:  filepath.Join(dir, "recon.db"),
	}
	cfg := fmt.Sprintf(`database:
  path: %s
company:
  tax_id: "%s"
  name: ООО Ромашка
logging:
  level: error
`, env.dbPath, testutil.CompanyINN)
	require.NoError(t, os.WriteFile(env.cfgPath, []byte(cfg), 0o600))
	return env
}

// run executes the command tree with input on stdin and returns stdout.
func (e *testEnv) run(input string, args ...string) (string, error) {
	e.t.Helper()
	viper.Reset()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(append([]string{"--config", e.cfgPath}, args...))
	root.SetIn(strings.NewReader(input))
	root.SetOut(&out)
	root.SetErr(io.Discard)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *testEnv) mustRun(input string, args ...string) string {
	e.t.Helper()
	out, err := e.run(input, args...)
	require.NoError(e.t, err, out)
	return out
}

func (e *testEnv) db() *testutil.TestDB {
	e.t.Helper()
	return testutil.SetupTestDBAt(e.t, e.dbPath)
}

func day(month time.Month, d int) time.Time {
	return time.Date(2024, month, d, 0, 0, 0, 0, time.UTC)
}

// seedRent stores three monthly rent payments with every required field
// but the article filled.
func (e *testEnv) seedRent() *testutil.TestDB {
	e.t.Helper()
	db := e.db()
	txns := []model.Transaction{
		testutil.Payment("target", day(time.March, 1), 50000, "7711111111", "Аренда офиса март"),
		testutil.Payment("feb", day(time.February, 1), 50000, "7711111111", "Аренда офиса февраль"),
		testutil.Payment("jan", day(time.January, 1), 50000, "7711111111", "Аренда офиса январь"),
	}
	for i := range txns {
		txns[i].AccountID = "acc-main"
	}
	db.SeedSession("s1", txns...)
	return db
}

func TestVersionCmd(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun("", "version")
	assert.Equal(t, "recon dev\n", out)
}

func TestMigrateCmd(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun("", "migrate", "--status")
	assert.Contains(t, out, "Current version: 0")

	out = env.mustRun("", "migrate")
	assert.Contains(t, out, "schema version 3")

	out = env.mustRun("", "migrate", "--status")
	assert.Contains(t, out, "Current version: 3")
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.cfgPath, []byte("similarity:\n  min_score: 150\n"), 0o600))

	_, err := env.run("", "sessions", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_score")
}

func TestEditCmd(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantOutput  string
		wantArticle map[string]string
		args        []string
		editUndone  bool
	}{
		{
			name:        "apply without asking",
			args:        []string{"--yes"},
			wantOutput:  "Applied to 2 similar operations: article",
			wantArticle: map[string]string{"target": "art-rent", "feb": "art-rent", "jan": "art-rent"},
		},
		{
			name:        "skip keeps only the direct edit",
			input:       "s\n",
			wantOutput:  "Similar operations left unchanged.",
			wantArticle: map[string]string{"target": "art-rent", "feb": "", "jan": ""},
		},
		{
			name:        "pick one then keep",
			input:       "2\n\n",
			wantArticle: map[string]string{"target": "art-rent", "feb": "", "jan": "art-rent"},
		},
		{
			name:        "apply then undo",
			input:       "a\nu\n",
			wantOutput:  "Undone: Applied to 2 similar operations: article",
			wantArticle: map[string]string{"target": "art-rent", "feb": "", "jan": ""},
		},
		{
			name:        "skip then undo the direct edit",
			input:       "s\nu\n",
			wantOutput:  `Undone: Set article to "art-rent"`,
			wantArticle: map[string]string{"target": "", "feb": "", "jan": ""},
			editUndone:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			db := env.seedRent()

			args := append([]string{"edit", "target", "article", "art-rent"}, tt.args...)
			out := env.mustRun(tt.input, args...)

			assert.Contains(t, out, tt.wantOutput)
			for id, want := range tt.wantArticle {
				assert.Equal(t, want, db.MustGet(id).ArticleID, id)
			}
			target, feb := db.MustGet("target"), db.MustGet("feb")
			assert.Equal(t, !tt.editUndone, target.IsLocked(model.FieldArticle))
			assert.False(t, feb.IsLocked(model.FieldArticle))
		})
	}
}

func TestEditCmd_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.seedRent()

	_, err := env.run("", "edit", "target", "colour", "red")
	assert.Error(t, err)

	_, err = env.run("", "edit", "missing", "article", "art-rent")
	assert.Error(t, err)

	_, err = env.run("", "edit", "target", "direction", "sideways")
	assert.Error(t, err)
}

func TestEditCmd_IncompleteTemplate(t *testing.T) {
	env := newTestEnv(t)
	db := env.db()
	db.SeedSession("s1",
		testutil.Payment("target", day(time.March, 1), 50000, "7711111111", "Аренда офиса март"),
		testutil.Payment("feb", day(time.February, 1), 50000, "7711111111", "Аренда офиса февраль"),
	)

	out := env.mustRun("", "edit", "target", "article", "art-rent")
	assert.Contains(t, out, "Fill the required fields")
	assert.Empty(t, db.MustGet("feb").ArticleID)
}

func TestSessionsCmd(t *testing.T) {
	env := newTestEnv(t)
	db := env.seedRent()

	out := env.mustRun("", "sessions", "list")
	assert.Contains(t, out, "s1.ofx")

	out = env.mustRun("", "sessions", "show", "s1")
	assert.Contains(t, out, "Аренда офиса январь")

	out = env.mustRun("", "transactions", "list", "s1", "--limit", "1")
	assert.Equal(t, 1, strings.Count(out, "Аренда офиса"))

	out = env.mustRun("n\n", "sessions", "delete", "s1")
	assert.Contains(t, out, "Nothing deleted.")

	out = env.mustRun("", "sessions", "confirm", "s1")
	assert.Contains(t, out, "Confirmed 3 operations")
	assert.True(t, db.MustGet("feb").Processed)

	out = env.mustRun("", "transactions", "list", "s1", "--unprocessed")
	assert.Contains(t, out, "No operations found.")

	env.mustRun("", "sessions", "delete", "s1", "--yes")
	out = env.mustRun("", "sessions", "list")
	assert.Contains(t, out, "No sessions yet.")
}

func TestSimilarCmd(t *testing.T) {
	env := newTestEnv(t)
	env.seedRent()

	out := env.mustRun("", "similar", "target")
	assert.Contains(t, out, "2 operations like")
	assert.Contains(t, out, "feb")
	assert.Contains(t, out, "jan")

	out = env.mustRun("", "similar", "target", "--min-score", "100")
	assert.Contains(t, out, "No similar operations.")

	out = env.mustRun("", "similar", "--groups", "s1")
	assert.Contains(t, out, "Group 1: 3 operations")

	_, err := env.run("", "similar", "target", "--field", "colour")
	assert.Error(t, err)
}

func TestRulesCmd(t *testing.T) {
	env := newTestEnv(t)
	env.seedRent()

	out := env.mustRun("", "rules", "list")
	assert.Contains(t, out, "No rules yet.")

	out = env.mustRun("", "rules", "add", "--pattern", "аренда офиса", "--target-id", "art-rent")
	assert.Contains(t, out, "Added rule 1")

	_, err := env.run("", "rules", "add", "--type", "regex", "--pattern", "(", "--target-id", "x")
	assert.Error(t, err)

	out = env.mustRun("", "rules", "preview", "s1", "--pattern", "январь", "--target-id", "art-rent")
	assert.Contains(t, out, "Matches 1 operations; 1 can be filled")

	env.mustRun("", "rules", "edit", "1", "--target-name", "Аренда")
	out = env.mustRun("", "rules", "list")
	assert.Contains(t, out, "Аренда (art-rent)")
	assert.Contains(t, out, "аренда офиса")

	out = env.mustRun("", "rules", "delete", "1")
	assert.Contains(t, out, "Deleted rule 1")

	_, err = env.run("", "rules", "delete", "abc")
	assert.Error(t, err)
}

func TestRulesCaptureCmd(t *testing.T) {
	env := newTestEnv(t)
	env.seedRent()
	env.mustRun("", "edit", "target", "article", "art-rent", "--yes")

	out := env.mustRun("n\n", "rules", "capture", "target")
	assert.Contains(t, out, "No rules saved.")

	out = env.mustRun("", "rules", "capture", "target", "--yes")
	assert.Contains(t, out, "Saved 2 rules")

	out = env.mustRun("", "rules", "list")
	assert.Contains(t, out, "art-rent")
	assert.Contains(t, out, "acc-main")
}

func TestRulesAliasCmd(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun("", "rules", "alias", "list")
	assert.Contains(t, out, "No aliases yet.")

	env.mustRun("", "rules", "alias", "add", "Сбербанк", "Sberbank")
	out = env.mustRun("", "rules", "alias", "list")
	assert.Contains(t, out, "сбербанк")
	assert.Contains(t, out, "Sberbank")
}

func TestAutofillCmd(t *testing.T) {
	env := newTestEnv(t)
	db := env.seedRent()

	env.mustRun("", "rules", "add", "--pattern", "аренда офиса", "--target-id", "art-rent")
	env.mustRun("s\n", "edit", "jan", "article", "art-mine")

	out := env.mustRun("", "autofill", "s1")
	assert.Contains(t, out, "Auto-fill complete")

	assert.Equal(t, "art-rent", db.MustGet("target").ArticleID)
	assert.Equal(t, "art-rent", db.MustGet("feb").ArticleID)
	assert.Equal(t, "art-mine", db.MustGet("jan").ArticleID, "locked value is kept")
	feb := db.MustGet("feb")
	assert.False(t, feb.IsLocked(model.FieldArticle))
}

const statementOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>RUB
<BANKACCTFROM>
<BANKID>044525225
<ACCTID>40702810900000000001
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240301000000[0:GMT]
<DTEND>20240331000000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240301120000[0:GMT]
<TRNAMT>-50000.00
<FITID>2024030101
<CHECKNUM>117
<NAME>OOO Landlord INN 7711111111
<MEMO>Office rent for March
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240305120000[0:GMT]
<TRNAMT>125000.50
<FITID>2024030501
<NAME>Client LLC
<MEMO>Payment for services INN: 7722222222
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240331120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func TestImportCmd(t *testing.T) {
	env := newTestEnv(t)
	file := filepath.Join(env.dir, "march.ofx")
	require.NoError(t, os.WriteFile(file, []byte(statementOFX), 0o600))

	out := env.mustRun("", "import", "--dry-run", file)
	assert.Contains(t, out, "march.ofx: 2 operations (dry run)")
	out = env.mustRun("", "sessions", "list")
	assert.Contains(t, out, "No sessions yet.")

	env.mustRun("", "rules", "add", "--pattern", "office rent", "--target-id", "art-rent")
	out = env.mustRun("", "import", file)
	assert.Contains(t, out, "Imported 2 operations from march.ofx")
	assert.Contains(t, out, "Rules filled 1 fields on 1 operations")

	db := env.db()
	sessions, err := db.Storage.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	txns, err := db.Storage.GetTransactions(context.Background(), sessions[0].ID, service.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txns, 2)

	byDescription := make(map[string]model.Transaction)
	for _, txn := range txns {
		byDescription[txn.Description] = txn
	}
	rent := byDescription["Office rent for March"]
	assert.Equal(t, model.DirectionExpense, rent.Direction)
	assert.Equal(t, "art-rent", rent.ArticleID)
	assert.False(t, rent.IsLocked(model.FieldArticle))
	assert.Equal(t, model.DirectionIncome, byDescription["Payment for services INN: 7722222222"].Direction)

	out = env.mustRun("", "import", file)
	assert.Contains(t, out, "2 operations were already imported in another session")
}

func TestImportCmd_NoFiles(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("", "import", filepath.Join(env.dir, "*.ofx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files found")
}
