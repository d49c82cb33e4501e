package weather

import "strings"

// Monitored ports per country. Country lookups are case-insensitive.
var portsByCountry = map[string][]string{
	"peru":      {"Callao", "Paita", "Matarani"},
	"chile":     {"Valparaiso", "San Antonio"},
	"ecuador":   {"Guayaquil", "Manta"},
	"colombia":  {"Buenaventura", "Cartagena"},
	"argentina": {"Buenos Aires", "Bahia Blanca"},
	"brasil":    {"Santos", "Rio de Janeiro"},
}

// Ports returns the monitored ports of a country.
func Ports(pais string) ([]string, bool) {
	ports, ok := portsByCountry[strings.ToLower(pais)]
	return ports, ok
}
