package services

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Lllllllleong/formationflow/internal/models"
)

const (
	unknownActivity = "Neodređena djelatnost"
	dateLayout      = "02.01.2006."
	pdfMimeType     = "application/pdf"
)

// Locative case of Montenegrin municipalities, as used in "sa sjedištem u ...".
var cityLocatives = map[string]string{
	"Andrijevica":  "Andrijevici",
	"Bar":          "Baru",
	"Berane":       "Beranama",
	"Bijelo Polje": "Bijelom Polju",
	"Budva":        "Budvi",
	"Cetinje":      "Cetinju",
	"Danilovgrad":  "Danilovgradu",
	"Gusinje":      "Gusinju",
	"Herceg Novi":  "Herceg Novom",
	"Kolašin":      "Kolašinu",
	"Kotor":        "Kotoru",
	"Mojkovac":     "Mojkovcu",
	"Nikšić":       "Nikšiću",
	"Petnjica":     "Petnjici",
	"Plav":         "Plavu",
	"Pljevlja":     "Pljevljima",
	"Plužine":      "Plužinama",
	"Podgorica":    "Podgorici",
	"Rožaje":       "Rožajama",
	"Šavnik":       "Šavniku",
	"Tivat":        "Tivtu",
	"Ulcinj":       "Ulcinju",
	"Žabljak":      "Žabljaku",
}

func cityLocative(city string) string {
	city = strings.TrimSpace(city)
	if city == "" {
		return ""
	}
	if loc, ok := cityLocatives[city]; ok {
		return loc
	}
	return city + "u"
}

type dataOptions struct {
	preview   bool
	obscure   bool
	watermark string
	now       time.Time
}

// templateData flattens a request into the record the statute template
// consumes.
func templateData(req *models.FormationRequest, catalog []models.ActivityCode, opts dataOptions) map[string]any {
	activity, activityCode := unknownActivity, ""
	if req.Activity != nil {
		activity, activityCode = req.Activity.Description, req.Activity.Code
	}

	allActivities := make([]map[string]any, 0, len(catalog))
	for _, a := range catalog {
		allActivities = append(allActivities, map[string]any{
			"code":        a.Code,
			"description": a.Description,
			"selected":    a.Code == activityCode,
		})
	}

	founders := make([]map[string]any, 0, len(req.Founders))
	for _, f := range req.Founders {
		idNumber, personalNumber := f.IDNumber, f.PersonalNumber
		if opts.preview && opts.obscure {
			idNumber, personalNumber = mask(idNumber), mask(personalNumber)
		}
		founders = append(founders, map[string]any{
			"name":            f.Name,
			"isResident":      f.IsResident,
			"personalNumber":  personalNumber,
			"idDocumentType":  string(f.IDDocumentType),
			"idNumber":        idNumber,
			"address":         f.Address,
			"sharePercentage": f.SharePercentage.String(),
			"birthPlace":      f.BirthPlace,
			"issuedBy":        f.IssuedBy,
		})
	}

	return map[string]any{
		"requestId":     req.ID,
		"companyName":   req.CompanyName,
		"companyType":   req.CompanyType,
		"address":       req.Address,
		"city":          req.City,
		"cityLocative":  cityLocative(req.City),
		"email":         req.Email,
		"phone":         req.Phone,
		"activity":      activity,
		"activityCode":  activityCode,
		"allActivities": allActivities,
		"capital":       req.Capital.StringFixed(2),
		"currentDate":   opts.now.Format(dateLayout),
		"founders":      founders,
		"isPreview":     opts.preview,
		"watermark":     opts.watermark,
	}
}

// mask keeps the last three characters of an identifier.
func mask(s string) string {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return ""
	}
	if n <= 3 {
		return strings.Repeat("*", n)
	}
	runes := []rune(s)
	return strings.Repeat("*", n-3) + string(runes[n-3:])
}

var (
	nonSlugChars = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
	whitespace   = regexp.MustCompile(`\s+`)
	nonAlnum     = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

func sanitizeCompanyName(name string) string {
	s := nonSlugChars.ReplaceAllString(name, "")
	s = whitespace.ReplaceAllString(strings.TrimSpace(s), "-")
	s = strings.ToLower(s)
	if s == "" {
		return "drustvo"
	}
	return s
}

func documentFileName(companyName string, at time.Time) string {
	return fmt.Sprintf("statut-%s-%d.pdf", sanitizeCompanyName(companyName), at.UnixMilli())
}

func previewFileName(companyName string) string {
	return fmt.Sprintf("preview-statut-%s.pdf", nonAlnum.ReplaceAllString(companyName, "-"))
}

func documentURL(basePath string, requestID int64, fileName string) string {
	return fmt.Sprintf("%s/company-request/%d/download/%s", strings.TrimRight(basePath, "/"), requestID, fileName)
}
