package roster

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/kimshangyup/neulbom/internal/model"
)

// utf8BOM makes Excel recognize the exported files as UTF-8.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TemplateCSV returns the downloadable roster template with the column
// order uploads are expected to follow.
func TemplateCSV() []byte {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	w.Write([]string{"school_name", "class_name", "student_name", "class_number", "grade", "zep_space_url"})
	w.Write([]string{"서울초등학교", "1반", "홍길동", "1", "3", ""})
	w.Flush()

	return buf.Bytes()
}

// CredentialsCSV renders generated credentials for download. Column order
// matches the operator-facing export format.
func CredentialsCSV(credentials []model.Credential) []byte {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	w.Write([]string{"학교", "학급", "이름", "반번호", "학년", "아이디", "비밀번호"})
	for _, cred := range credentials {
		w.Write([]string{
			cred.SchoolName,
			cred.ClassName,
			cred.Name,
			optionalInt(cred.ClassNumber),
			optionalInt(cred.Grade),
			cred.Username,
			cred.Password,
		})
	}
	w.Flush()

	return buf.Bytes()
}

func optionalInt(n *int) string {
	if n == nil {
		return "-"
	}
	return strconv.Itoa(*n)
}
