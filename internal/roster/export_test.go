package roster

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/kimshangyup/neulbom/internal/model"
)

func TestTemplateCSVHasBOMAndHeader(t *testing.T) {
	data := TemplateCSV()
	if !bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		t.Fatal("template must start with a UTF-8 BOM")
	}

	records, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF}))).ReadAll()
	if err != nil {
		t.Fatalf("template is not valid CSV: %v", err)
	}
	want := "school_name,class_name,student_name,class_number,grade,zep_space_url"
	if got := strings.Join(records[0], ","); got != want {
		t.Errorf("header = %q, want %q", got, want)
	}
	if len(records) != 2 {
		t.Errorf("template should carry one example row, got %d records", len(records))
	}
}

func TestCredentialsCSV(t *testing.T) {
	grade := 3
	creds := []model.Credential{
		{SchoolName: "서울초", ClassName: "1반", Name: "홍길동", Grade: &grade, Username: "hong.seoul@neulbom.internal", Password: "pw"},
	}

	data := CredentialsCSV(creds)
	if !bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		t.Fatal("export must start with a UTF-8 BOM")
	}

	records, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF}))).ReadAll()
	if err != nil {
		t.Fatalf("export is not valid CSV: %v", err)
	}
	if got := strings.Join(records[0], ","); got != "학교,학급,이름,반번호,학년,아이디,비밀번호" {
		t.Errorf("unexpected header: %q", got)
	}
	row := records[1]
	if row[3] != "-" {
		t.Errorf("absent class number should render as \"-\", got %q", row[3])
	}
	if row[4] != "3" {
		t.Errorf("grade = %q, want \"3\"", row[4])
	}
	if row[5] != "hong.seoul@neulbom.internal" || row[6] != "pw" {
		t.Errorf("credential columns wrong: %v", row)
	}
}
