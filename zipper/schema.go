package zipper

import (
	"fmt"
	"strconv"
	"strings"
)

// CrossRef declares that a local index column on the source collection
// refers into the target collection. The globalized field is attached to the
// source group under GlobalIndex.
type CrossRef struct {
	Source      string
	Target      string
	LocalIndex  string
	GlobalIndex string
}

// NestedItem declares a composite field built by positionally pairing a
// fixed set of already-globalized index fields.
type NestedItem struct {
	Name     string
	Indexers []string
}

// NestedIndexItem declares a composite field built by unflattening the
// target collection according to a jagged local counts column.
type NestedIndexItem struct {
	Name        string
	LocalCounts string
	Target      string
}

// SpecialKind selects the kernel computing a special item.
type SpecialKind int

// The special item kernels.
const (
	SpecialDistinctParent SpecialKind = iota
	SpecialChildren
	SpecialDistinctChildrenDeep
)

// SpecialItem declares a computed field with its kernel and input columns.
type SpecialItem struct {
	Name string
	Kind SpecialKind
	Args []string
}

// Schema is the static configuration driving the tree builder: which index
// columns cross-reference which collections, which composite fields to
// construct, and which type tag each collection carries. It is plain data,
// supplied by value, and never mutated by the builder.
type Schema struct {
	Name             string
	CrossRefs        []CrossRef
	NestedItems      []NestedItem
	NestedIndexItems []NestedIndexItem
	SpecialItems     []SpecialItem
	Mixins           map[string]string
	EventIDs         []string
}

// crossRef derives a CrossRef from the local index column name, taking the
// source collection from the name's prefix and appending the G marker for
// the global field.
func crossRef(localIndex, target string) CrossRef {
	source := localIndex
	if i := strings.Index(localIndex, "_"); i > 0 {
		source = localIndex[:i]
	}
	return CrossRef{
		Source:      source,
		Target:      target,
		LocalIndex:  localIndex,
		GlobalIndex: localIndex + "G",
	}
}

// nanoCrossRefs are the NanoAOD cross-references in deterministic order.
var nanoCrossRefs = []CrossRef{
	crossRef("Electron_genPartIdx", "GenPart"),
	crossRef("Electron_jetIdx", "Jet"),
	crossRef("Electron_photonIdx", "Photon"),
	crossRef("FatJet_genJetAK8Idx", "GenJetAK8"),
	crossRef("FatJet_subJetIdx1", "SubJet"),
	crossRef("FatJet_subJetIdx2", "SubJet"),
	crossRef("FsrPhoton_muonIdx", "Muon"),
	crossRef("GenPart_genPartIdxMother", "GenPart"),
	crossRef("GenVisTau_genPartIdxMother", "GenPart"),
	crossRef("Jet_electronIdx1", "Electron"),
	crossRef("Jet_electronIdx2", "Electron"),
	crossRef("Jet_genJetIdx", "GenJet"),
	crossRef("Jet_muonIdx1", "Muon"),
	crossRef("Jet_muonIdx2", "Muon"),
	crossRef("LowPtElectron_electronIdx", "Electron"),
	crossRef("LowPtElectron_genPartIdx", "GenPart"),
	crossRef("LowPtElectron_photonIdx", "Photon"),
	crossRef("Muon_fsrPhotonIdx", "FsrPhoton"),
	crossRef("Muon_genPartIdx", "GenPart"),
	crossRef("Muon_jetIdx", "Jet"),
	crossRef("Photon_electronIdx", "Electron"),
	crossRef("Photon_genPartIdx", "GenPart"),
	crossRef("Photon_jetIdx", "Jet"),
	crossRef("Tau_genPartIdx", "GenPart"),
	crossRef("Tau_jetIdx", "Jet"),
}

var nanoMixins = map[string]string{
	"CaloMET":      "MissingET",
	"ChsMET":       "MissingET",
	"GenMET":       "MissingET",
	"MET":          "MissingET",
	"METFixEE2017": "MissingET",
	"PuppiMET":     "MissingET",
	"RawMET":       "MissingET",
	"RawPuppiMET":  "MissingET",
	"TkMET":        "MissingET",
	// pseudo-lorentz: pt, eta, phi, mass=0
	"IsoTrack":        "PtEtaPhiMCollection",
	"SoftActivityJet": "PtEtaPhiMCollection",
	"TrigObj":         "PtEtaPhiMCollection",
	// true lorentz: pt, eta, phi, mass
	"FatJet":            "FatJet",
	"GenDressedLepton":  "PtEtaPhiMCollection",
	"GenIsolatedPhoton": "PtEtaPhiMCollection",
	"GenJet":            "PtEtaPhiMCollection",
	"GenJetAK8":         "PtEtaPhiMCollection",
	"Jet":               "Jet",
	"LHEPart":           "PtEtaPhiMCollection",
	"SubGenJetAK8":      "PtEtaPhiMCollection",
	"SubJet":            "PtEtaPhiMCollection",
	// candidate: lorentz + charge
	"Electron":      "Electron",
	"LowPtElectron": "LowPtElectron",
	"Muon":          "Muon",
	"Photon":        "Photon",
	"FsrPhoton":     "FsrPhoton",
	"Tau":           "Tau",
	"GenVisTau":     "GenVisTau",
	// special
	"GenPart": "GenParticle",
	"PV":      "Vertex",
	"SV":      "SecondaryVertex",
}

// NanoAOD returns the schema preset for the NanoAOD naming convention.
// version is "latest" or a format version ("5".."7"); older versions prune
// the cross-references their format lacks.
func NanoAOD(version string) (*Schema, error) {
	crossRefs := nanoCrossRefs
	if version != "latest" {
		v, err := strconv.Atoi(version)
		if err != nil {
			return nil, fmt.Errorf("invalid NanoAOD version %q: %w", version, err)
		}
		var drop []string
		if v < 7 {
			drop = append(drop, "FatJet_genJetAK8Idx")
		}
		if v < 6 {
			drop = append(drop, "FsrPhoton_muonIdx", "Muon_fsrPhotonIdx")
		}
		crossRefs = dropCrossRefs(nanoCrossRefs, drop)
	}

	return &Schema{
		Name:      "NanoAOD",
		CrossRefs: crossRefs,
		NestedItems: []NestedItem{
			{Name: "FatJet_subJetIdxG", Indexers: []string{"FatJet_subJetIdx1G", "FatJet_subJetIdx2G"}},
			{Name: "Jet_muonIdxG", Indexers: []string{"Jet_muonIdx1G", "Jet_muonIdx2G"}},
			{Name: "Jet_electronIdxG", Indexers: []string{"Jet_electronIdx1G", "Jet_electronIdx2G"}},
		},
		NestedIndexItems: []NestedIndexItem{
			{Name: "Jet_pFCandsIdxG", LocalCounts: "Jet_nConstituents", Target: "JetPFCands"},
			{Name: "FatJet_pFCandsIdxG", LocalCounts: "FatJet_nConstituents", Target: "FatJetPFCands"},
			{Name: "GenJet_pFCandsIdxG", LocalCounts: "GenJet_nConstituents", Target: "GenJetCands"},
			{Name: "GenFatJet_pFCandsIdxG", LocalCounts: "GenJetAK8_nConstituents", Target: "GenFatJetCands"},
		},
		SpecialItems: []SpecialItem{
			{
				Name: "GenPart_distinctParentIdxG",
				Kind: SpecialDistinctParent,
				Args: []string{"GenPart_genPartIdxMotherG", "GenPart_pdgId"},
			},
			{
				Name: "GenPart_childrenIdxG",
				Kind: SpecialChildren,
				Args: []string{"nGenPart", "GenPart_genPartIdxMotherG"},
			},
			{
				Name: "GenPart_distinctChildrenIdxG",
				Kind: SpecialChildren,
				Args: []string{"nGenPart", "GenPart_distinctParentIdxG"},
			},
			{
				Name: "GenPart_distinctChildrenDeepIdxG",
				Kind: SpecialDistinctChildrenDeep,
				Args: []string{"nGenPart", "GenPart_genPartIdxMotherG", "GenPart_pdgId"},
			},
		},
		Mixins:   nanoMixins,
		EventIDs: []string{"run", "luminosityBlock", "event"},
	}, nil
}

// PFNano returns the schema preset for the PFNano extension of NanoAOD,
// which adds PF candidate and secondary vertex collections.
func PFNano() *Schema {
	s, _ := NanoAOD("latest")
	s.Name = "PFNano"

	s.Mixins = mergeMixins(nanoMixins, map[string]string{
		"JetSVs":         "AssociatedSV",
		"FatJetSVs":      "AssociatedSV",
		"GenJetSVs":      "AssociatedSV",
		"GenFatJetSVs":   "AssociatedSV",
		"JetPFCands":     "AssociatedPFCand",
		"FatJetPFCands":  "AssociatedPFCand",
		"GenJetCands":    "AssociatedPFCand",
		"GenFatJetCands": "AssociatedPFCand",
		"PFCands":        "PFCand",
		"GenCands":       "PFCand",
	})

	s.CrossRefs = append(s.CrossRefs,
		CrossRef{Source: "FatJetPFCands", Target: "FatJet", LocalIndex: "FatJetPFCands_jetIdx", GlobalIndex: "FatJetPFCands_jetIdxG"},
		crossRef("FatJetPFCands_pFCandsIdx", "PFCands"),
		CrossRef{Source: "FatJetSVs", Target: "FatJet", LocalIndex: "FatJetSVs_jetIdx", GlobalIndex: "FatJetSVs_jetIdxG"},
		crossRef("FatJetSVs_sVIdx", "SV"),
		crossRef("FatJet_electronIdx3SJ", "Electron"),
		crossRef("FatJet_muonIdx3SJ", "Muon"),
		CrossRef{Source: "GenFatJetCands", Target: "GenJetAK8", LocalIndex: "GenFatJetCands_jetIdx", GlobalIndex: "GenFatJetCands_jetIdxG"},
		crossRef("GenFatJetCands_pFCandsIdx", "GenCands"),
		CrossRef{Source: "GenFatJetSVs", Target: "GenJetAK8", LocalIndex: "GenFatJetSVs_jetIdx", GlobalIndex: "GenFatJetSVs_jetIdxG"},
		crossRef("GenFatJetSVs_sVIdx", "SV"),
		CrossRef{Source: "GenJetCands", Target: "GenJet", LocalIndex: "GenJetCands_jetIdx", GlobalIndex: "GenJetCands_jetIdxG"},
		crossRef("GenJetCands_pFCandsIdx", "GenCands"),
		CrossRef{Source: "GenJetSVs", Target: "GenJet", LocalIndex: "GenJetSVs_jetIdx", GlobalIndex: "GenJetSVs_jetIdxG"},
		crossRef("GenJetSVs_sVIdx", "SV"),
		crossRef("JetPFCands_jetIdx", "Jet"),
		crossRef("JetPFCands_pFCandsIdx", "PFCands"),
		crossRef("JetSVs_jetIdx", "Jet"),
		crossRef("JetSVs_sVIdx", "SV"),
		crossRef("SubJet_subGenJetAK8Idx", "SubGenJetAK8"),
	)
	return s
}

// ScoutingNano returns the schema preset for ScoutingNano, NanoAOD plus the
// scouting object collections.
func ScoutingNano() *Schema {
	s, _ := NanoAOD("latest")
	s.Name = "ScoutingNano"
	s.Mixins = mergeMixins(nanoMixins, map[string]string{
		"ScoutingJet":                      "Jet",
		"ScoutingFatJet":                   "FatJet",
		"ScoutingMET":                      "MissingET",
		"ScoutingMuonNoVtxDisplacedVertex": "Vertex",
		"ScoutingMuonVtxDisplacedVertex":   "Vertex",
		"ScoutingPrimaryVertex":            "Vertex",
		"ScoutingElectron":                 "Electron",
		"ScoutingPhoton":                   "Photon",
		"ScoutingMuonNoVtx":                "Muon",
		"ScoutingMuonVtx":                  "Muon",
	})
	return s
}

func dropCrossRefs(refs []CrossRef, drop []string) []CrossRef {
	out := make([]CrossRef, 0, len(refs))
	for _, cr := range refs {
		dropped := false
		for _, name := range drop {
			if cr.LocalIndex == name {
				dropped = true
				break
			}
		}
		if !dropped {
			out = append(out, cr)
		}
	}
	return out
}

func mergeMixins(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
