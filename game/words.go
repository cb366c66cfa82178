package game

// defaultWords is used when the configuration does not supply a word list.
var defaultWords = []string{
	"kuca", "auto", "drvo", "sunce", "mesec", "zvezda", "cvet", "pas", "macka",
	"ptica", "riba", "krava", "konj", "ovca", "kokoška", "patka", "guska",
	"slon", "lav", "tigar", "medved", "vuk", "lisica", "zec", "mis",
	"kornjača", "zmija", "žaba", "žirafa", "nosorog", "hipopotam",
	"banana", "jabuka", "narandža", "grožđe", "jagoda", "malina",
	"kruška", "šljiva", "kajsija", "breskva", "ananas", "limun",
	"kafa", "čaj", "mleko", "voda", "sok", "pivo", "vino",
	"hleb", "sir", "meso", "jaje", "povrće", "krompir",
	"telefon", "kompjuter", "televizor", "radio", "kamera", "sat",
	"knjiga", "olovka", "papir", "stolica", "sto", "krevet",
	"lampa", "prozor", "vrata", "ogledalo", "slika", "tepih",
	"bicikl", "avion", "brod", "voz", "autobus", "kamion",
	"helikopter", "balon", "padobran", "skije", "sanke",
	"lopta", "raket", "mreža", "gol", "teren", "tribina",
	"škola", "bolnica", "banka", "prodavnica", "restoran", "hotel",
	"park", "šuma", "reka", "more", "planina", "grad",
	"sneg", "kiša", "vetar", "oblak", "duga", "munja",
}

func (e *Engine) pickWord() string {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.words[e.rng.Intn(len(e.words))]
}
