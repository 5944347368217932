// Package generate produces synthetic demo datasets from a profile: one
// builder per entity type, a seeded random source, and an orchestrator that
// runs the builders in dependency order.
package generate

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	agronomydomain "github.com/farmerpower/platform/internal/agronomy/domain"
	"github.com/farmerpower/platform/internal/config"
	costsdomain "github.com/farmerpower/platform/internal/costs/domain"
	"github.com/farmerpower/platform/internal/demodata/profile"
	"github.com/farmerpower/platform/internal/demodata/registry"
	"github.com/farmerpower/platform/internal/demodata/snapshot"
	documentdomain "github.com/farmerpower/platform/internal/document/domain"
	plantationdomain "github.com/farmerpower/platform/internal/plantation/domain"
	"github.com/gosimple/slug"
	"gorm.io/datatypes"
)

// ErrMissingUpstream is returned when a builder needs identifiers of an
// upstream entity type and the registry has none. Builders never emit
// dangling references.
var ErrMissingUpstream = errors.New("missing_upstream_ids")

// Override mutates a generated record before it is registered. Explicit
// overrides win over generated values.
type Override[T any] func(*T)

// Builder produces semantically valid records for every entity type from
// one seeded random source. Cross-references are drawn from the registry.
type Builder struct {
	rng  *rand.Rand
	reg  *registry.Registry
	prof profile.Profile

	rates config.RateCard
}

func NewBuilder(seed int64, reg *registry.Registry, prof profile.Profile) *Builder {
	return &Builder{
		rng:   rand.New(rand.NewSource(seed)),
		reg:   reg,
		prof:  prof,
		rates: config.DefaultRateCard(),
	}
}

var regionNames = []string{
	"Nyeri Highlands", "Kericho Plateau", "Nandi Hills", "Kiambu Ridge",
	"Murang'a Slopes", "Bomet Valley", "Kisii Uplands", "Embu Escarpment",
	"Meru North", "Kakamega Edge",
}

var factoryNames = []string{
	"Gathuthi", "Ragati", "Momul", "Chebut", "Kapset", "Litein",
	"Ikumbi", "Githambo", "Kionyo", "Mununga", "Toror", "Tegat",
}

var villageNames = []string{
	"Gatitu", "Kagumo", "Chepsir", "Kapsoit", "Kimulot", "Siret",
	"Kebeneti", "Mataara", "Gacharage", "Kanyenyaini", "Iriaini", "Chelal",
	"Kapkatet", "Sitoi", "Ndima", "Gitugi", "Kiptenden", "Mokomoni",
}

var firstNames = []string{
	"Wanjiku", "Kipchoge", "Chebet", "Njeri", "Otieno", "Mutua",
	"Wairimu", "Kiprono", "Akinyi", "Baraka", "Cherono", "Dennis",
	"Esther", "Faith", "Gilbert", "Hellen", "Ibrahim", "Joyce",
	"Lilian", "Moses", "Naliaka", "Omondi", "Peninah", "Rashid",
	"Sarah", "Tabitha", "Wekesa", "Zipporah",
}

var lastNames = []string{
	"Kamau", "Rotich", "Langat", "Mwangi", "Odhiambo", "Musyoka",
	"Githinji", "Koech", "Onyango", "Wafula", "Njoroge", "Kiptoo",
	"Atieno", "Barasa", "Chepkwony", "Gathoni", "Kilonzo", "Maina",
	"Nyambura", "Ouma",
}

// BuildRegion generates one growing region. Regions have no upstream
// dependencies.
func (b *Builder) BuildRegion(overrides ...Override[plantationdomain.Region]) plantationdomain.Region {
	name := b.pick(regionNames)

	region := plantationdomain.Region{
		Name:                name,
		CountryCode:         b.weightedPick([]weighted{{"KE", 0.7}, {"RW", 0.15}, {"UG", 0.15}}),
		CentroidLat:         roundTo(-1.5+b.rng.Float64()*2.1, 5),
		CentroidLng:         roundTo(34.5+b.rng.Float64()*3.5, 5),
		AltitudeBand:        b.weightedPick([]weighted{{plantationdomain.AltitudeBandHighland, 0.5}, {plantationdomain.AltitudeBandMidland, 0.3}, {plantationdomain.AltitudeBandLowland, 0.2}}),
		SoilType:            b.weightedPick([]weighted{{plantationdomain.SoilTypeVolcanicLoam, 0.4}, {plantationdomain.SoilTypeClay, 0.2}, {plantationdomain.SoilTypeSandyLoam, 0.2}, {plantationdomain.SoilTypeLaterite, 0.2}}),
		AvgAnnualRainfallMM: roundTo(1200+b.rng.Float64()*1300, 1),
		Metadata: datatypes.JSONMap{
			"avg_altitude_m": 1500 + b.rng.Intn(900),
			"tea_zones":      1 + b.rng.Intn(4),
		},
	}

	for _, o := range overrides {
		o(&region)
	}
	if region.Code == "" {
		region.Code = b.uniqueCode(snapshot.EntityRegions, region.Name)
	}
	b.reg.Register(snapshot.EntityRegions, region.Code)
	return region
}

// BuildFactory generates one processing factory referencing an existing
// region.
func (b *Builder) BuildFactory(overrides ...Override[plantationdomain.Factory]) (plantationdomain.Factory, error) {
	regions := b.reg.AllIDs(snapshot.EntityRegions)
	if len(regions) == 0 {
		return plantationdomain.Factory{}, fmt.Errorf("%w: factory requires regions", ErrMissingUpstream)
	}

	name := b.pick(factoryNames) + " Tea Factory"
	commissioned := b.prof.DateRange.From.AddDate(0, 0, -(730 + b.rng.Intn(365*25)))

	factory := plantationdomain.Factory{
		RegionCode:       regions[b.rng.Intn(len(regions))],
		Name:             name,
		CapacityKgPerDay: math.Round((8000+b.rng.Float64()*32000)/100) * 100,
		CommissionedOn:   commissioned,
		Status:           b.weightedPick([]weighted{{plantationdomain.FactoryStatusActive, 0.9}, {plantationdomain.FactoryStatusDormant, 0.1}}),
	}

	for _, o := range overrides {
		o(&factory)
	}
	if factory.Code == "" {
		factory.Code = b.uniqueCode(snapshot.EntityFactories, factory.Name)
	}
	b.reg.Register(snapshot.EntityFactories, factory.Code)
	return factory, nil
}

// BuildCollectionPoint generates one leaf collection site under an existing
// factory. Farmer assignment happens after the farmer stage, so the list
// starts empty.
func (b *Builder) BuildCollectionPoint(overrides ...Override[plantationdomain.CollectionPoint]) (plantationdomain.CollectionPoint, error) {
	factories := b.reg.AllIDs(snapshot.EntityFactories)
	if len(factories) == 0 {
		return plantationdomain.CollectionPoint{}, fmt.Errorf("%w: collection point requires factories", ErrMissingUpstream)
	}

	name := b.pick(villageNames) + " Collection Point"

	cp := plantationdomain.CollectionPoint{
		FactoryCode: factories[b.rng.Intn(len(factories))],
		Name:        name,
		Latitude:    roundTo(-1.5+b.rng.Float64()*2.1, 5),
		Longitude:   roundTo(34.5+b.rng.Float64()*3.5, 5),
		FarmerCodes: datatypes.JSONSlice[string]{},
	}

	for _, o := range overrides {
		o(&cp)
	}
	if cp.Code == "" {
		cp.Code = b.uniqueCode(snapshot.EntityCollectionPoints, cp.Name)
	}
	b.reg.Register(snapshot.EntityCollectionPoints, cp.Code)
	return cp, nil
}

// BuildFarmer generates one enrolled farmer referencing an existing region.
func (b *Builder) BuildFarmer(overrides ...Override[plantationdomain.Farmer]) (plantationdomain.Farmer, error) {
	regions := b.reg.AllIDs(snapshot.EntityRegions)
	if len(regions) == 0 {
		return plantationdomain.Farmer{}, fmt.Errorf("%w: farmer requires regions", ErrMissingUpstream)
	}

	fullName := b.pick(firstNames) + " " + b.pick(lastNames)

	farmer := plantationdomain.Farmer{
		RegionCode:       regions[b.rng.Intn(len(regions))],
		FullName:         fullName,
		Phone:            fmt.Sprintf("+2547%08d", b.rng.Intn(100000000)),
		FarmSizeHectares: roundTo(0.2+b.rng.Float64()*4.8, 2),
		TeaVariety:       b.weightedPick([]weighted{{plantationdomain.TeaVarietySeedling, 0.5}, {plantationdomain.TeaVarietyClonal, 0.35}, {plantationdomain.TeaVarietyPurple, 0.15}}),
		EnrolledOn:       b.dateIn(),
		Scenario:         profile.ScenarioSteady,
	}

	for _, o := range overrides {
		o(&farmer)
	}
	if farmer.Code == "" {
		farmer.Code = b.uniqueCode(snapshot.EntityFarmers, farmer.FullName)
	}
	b.reg.Register(snapshot.EntityFarmers, farmer.Code)
	return farmer, nil
}

// BuildFarmers generates n farmers distributed across the profile's
// scenarios: floor(weight*n) each, remainder to the first-listed scenario.
func (b *Builder) BuildFarmers(n int) ([]plantationdomain.Farmer, error) {
	counts := b.prof.ScenarioCounts(n)

	farmers := make([]plantationdomain.Farmer, 0, n)
	for _, s := range b.prof.Scenarios {
		scenario := s.Name
		for i := 0; i < counts[scenario]; i++ {
			farmer, err := b.BuildFarmer(func(f *plantationdomain.Farmer) {
				f.Scenario = scenario
			})
			if err != nil {
				return nil, err
			}
			farmers = append(farmers, farmer)
		}
	}
	return farmers, nil
}

// BuildPerformanceSeries generates the last `months` monthly aggregates for
// one farmer, shaped by the farmer's scenario, newest period last.
func (b *Builder) BuildPerformanceSeries(farmer plantationdomain.Farmer, months int) []agronomydomain.FarmerPerformance {
	if months <= 0 {
		return nil
	}

	quality := 72 + b.rng.Float64()*13
	reject := 2 + b.rng.Float64()*4
	weight := 250 + b.rng.Float64()*250
	qualityDrift, rejectDrift, weightFactor := 0.0, 0.0, 1.0

	switch farmer.Scenario {
	case profile.ScenarioTopPerformer:
		quality = 88 + b.rng.Float64()*8
		reject = 0.5 + b.rng.Float64()*2.5
		weight = 450 + b.rng.Float64()*350
		weightFactor = 1.01
	case profile.ScenarioDeclining:
		quality = 75 + b.rng.Float64()*10
		reject = 2 + b.rng.Float64()*3
		weight = 300 + b.rng.Float64()*250
		qualityDrift = -1.5
		rejectDrift = 0.8
		weightFactor = 0.92
	}

	series := make([]agronomydomain.FarmerPerformance, 0, months)
	anchor := b.prof.DateRange.To
	for i := months - 1; i >= 0; i-- {
		period := anchor.AddDate(0, -i, 0).Format("2006-01")

		q, r, w := quality, reject, weight
		if farmer.Scenario == profile.ScenarioErratic {
			q = 55 + b.rng.Float64()*35
			r = 1 + b.rng.Float64()*11
			w = 120 + b.rng.Float64()*480
		} else {
			// small monthly jitter on top of the scenario trend
			q += (b.rng.Float64() - 0.5) * 4
			r += (b.rng.Float64() - 0.5) * 1.5
			w *= 1 + (b.rng.Float64()-0.5)*0.1
		}
		q = clamp(q, 0, 100)
		r = clamp(r, 0, 100)
		if w < 0 {
			w = 0
		}

		deliveries := 4 + b.rng.Intn(23)
		earnings := w * (0.18 + q/100*0.2)

		series = append(series, agronomydomain.FarmerPerformance{
			FarmerCode:      farmer.Code,
			PeriodMonth:     period,
			DeliveriesCount: deliveries,
			TotalWeightKg:   roundTo(w, 1),
			AvgQualityScore: roundTo(q, 1),
			RejectRatePct:   roundTo(r, 1),
			EarningsUSD:     roundTo(earnings, 2),
		})

		quality += qualityDrift
		reject += rejectDrift
		weight *= weightFactor
	}
	return series
}

// BuildWeatherSeries generates the last `days` consecutive daily
// observations for one region, ending at the profile range end.
func (b *Builder) BuildWeatherSeries(region plantationdomain.Region, days int) []agronomydomain.WeatherObservation {
	if days <= 0 {
		return nil
	}

	minBase, maxSpread := 12.0, 8.0
	switch region.AltitudeBand {
	case plantationdomain.AltitudeBandHighland:
		minBase, maxSpread = 8.0, 7.0
	case plantationdomain.AltitudeBandLowland:
		minBase, maxSpread = 15.0, 9.0
	}

	series := make([]agronomydomain.WeatherObservation, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := b.prof.DateRange.To.AddDate(0, 0, -i)

		tempMin := minBase + b.rng.Float64()*4
		tempMax := tempMin + 6 + b.rng.Float64()*maxSpread

		var rainfall float64
		switch bucket := b.rng.Float64(); {
		case bucket < 0.6:
			rainfall = b.rng.Float64() * 3
		case bucket < 0.9:
			rainfall = 3 + b.rng.Float64()*12
		default:
			rainfall = 15 + b.rng.Float64()*25
		}

		series = append(series, agronomydomain.WeatherObservation{
			RegionCode:  region.Code,
			ObservedOn:  day,
			TempMinC:    roundTo(tempMin, 1),
			TempMaxC:    roundTo(tempMax, 1),
			RainfallMM:  roundTo(rainfall, 1),
			HumidityPct: roundTo(55+b.rng.Float64()*40, 1),
		})
	}
	return series
}

// BuildDocument generates one uploaded document for an existing farmer.
// Factory-issued document types reference a factory when any exist.
func (b *Builder) BuildDocument(overrides ...Override[documentdomain.Document]) (documentdomain.Document, error) {
	farmers := b.reg.AllIDs(snapshot.EntityFarmers)
	if len(farmers) == 0 {
		return documentdomain.Document{}, fmt.Errorf("%w: document requires farmers", ErrMissingUpstream)
	}

	docType := b.weightedPick([]weighted{
		{documentdomain.DocTypeDeliveryReceipt, 0.5},
		{documentdomain.DocTypeIDCard, 0.2},
		{documentdomain.DocTypeLandTitle, 0.15},
		{documentdomain.DocTypeQualityCert, 0.15},
	})

	pages := 1
	switch docType {
	case documentdomain.DocTypeDeliveryReceipt:
		pages = 1 + b.rng.Intn(2)
	case documentdomain.DocTypeLandTitle:
		pages = 2 + b.rng.Intn(7)
	case documentdomain.DocTypeQualityCert:
		pages = 1 + b.rng.Intn(3)
	}

	doc := documentdomain.Document{
		FarmerCode:       farmers[b.rng.Intn(len(farmers))],
		DocType:          docType,
		Pages:            pages,
		UploadedAt:       b.timeIn(),
		ExtractionStatus: b.weightedPick([]weighted{{documentdomain.ExtractionStatusExtracted, 0.7}, {documentdomain.ExtractionStatusPending, 0.2}, {documentdomain.ExtractionStatusFailed, 0.1}}),
	}

	if doc.ExtractionStatus == documentdomain.ExtractionStatusExtracted {
		conf := roundTo(0.72+b.rng.Float64()*0.27, 3)
		doc.ExtractionConfidence = &conf
	}

	factoryIssued := docType == documentdomain.DocTypeDeliveryReceipt || docType == documentdomain.DocTypeQualityCert
	if factories := b.reg.AllIDs(snapshot.EntityFactories); factoryIssued && len(factories) > 0 {
		code := factories[b.rng.Intn(len(factories))]
		doc.FactoryCode = &code
	}

	for _, o := range overrides {
		o(&doc)
	}
	if doc.Code == "" {
		doc.Code = b.uniqueCode(snapshot.EntityDocuments, fmt.Sprintf("doc-%08x", b.rng.Uint32()))
	}
	if doc.StoragePath == "" {
		doc.StoragePath = fmt.Sprintf("s3://farmerpower-documents/%s/%s.pdf", doc.FarmerCode, doc.Code)
	}
	b.reg.Register(snapshot.EntityDocuments, doc.Code)
	return doc, nil
}

var costServices = map[string]string{
	costsdomain.CostTypeLLM:       "advisory-chat",
	costsdomain.CostTypeDocument:  "doc-intake",
	costsdomain.CostTypeEmbedding: "knowledge-index",
	costsdomain.CostTypeSMS:       "alerts",
}

// BuildCostEvent generates one AI/ML cost event. Farmer and factory
// attribution is optional and only drawn when upstream records exist.
func (b *Builder) BuildCostEvent(overrides ...Override[costsdomain.CostEvent]) costsdomain.CostEvent {
	costType := b.weightedPick([]weighted{
		{costsdomain.CostTypeLLM, 0.4},
		{costsdomain.CostTypeDocument, 0.25},
		{costsdomain.CostTypeEmbedding, 0.2},
		{costsdomain.CostTypeSMS, 0.15},
	})
	unit, _ := costsdomain.UnitForCostType(costType)

	var quantity float64
	switch costType {
	case costsdomain.CostTypeLLM:
		quantity = float64(200 + b.rng.Intn(11800))
	case costsdomain.CostTypeDocument:
		quantity = float64(1 + b.rng.Intn(8))
	case costsdomain.CostTypeEmbedding:
		quantity = float64(1 + b.rng.Intn(40))
	default:
		quantity = float64(1 + b.rng.Intn(5))
	}

	rate, _ := b.rates.Rate(costType)

	event := costsdomain.CostEvent{
		OccurredAt: b.timeIn(),
		Service:    costServices[costType],
		CostType:   costType,
		Unit:       unit,
		Quantity:   quantity,
		AmountUSD:  roundTo(quantity*rate, 6),
	}

	if farmers := b.reg.AllIDs(snapshot.EntityFarmers); len(farmers) > 0 && b.rng.Float64() < 0.6 {
		code := farmers[b.rng.Intn(len(farmers))]
		event.FarmerCode = &code
	}
	if factories := b.reg.AllIDs(snapshot.EntityFactories); len(factories) > 0 && b.rng.Float64() < 0.3 {
		code := factories[b.rng.Intn(len(factories))]
		event.FactoryCode = &code
	}
	if event.CostType == costsdomain.CostTypeLLM {
		event.Metadata = datatypes.JSONMap{"model": "fp-advisor-1"}
	}

	for _, o := range overrides {
		o(&event)
	}
	if event.RequestID == "" {
		event.RequestID = b.uniqueCode(snapshot.EntityCostEvents, fmt.Sprintf("req-%016x", b.rng.Uint64()))
	}
	b.reg.Register(snapshot.EntityCostEvents, event.RequestID)
	return event
}

// AssignFarmers distributes farmers across collection points, preferring
// points whose factory sits in the farmer's region. Each farmer joins one
// point, sometimes two. Mutates cps in place.
func (b *Builder) AssignFarmers(cps []plantationdomain.CollectionPoint, factories []plantationdomain.Factory, farmers []plantationdomain.Farmer) {
	if len(cps) == 0 {
		return
	}

	factoryRegion := make(map[string]string, len(factories))
	for _, f := range factories {
		factoryRegion[f.Code] = f.RegionCode
	}

	all := make([]int, len(cps))
	for i := range cps {
		all[i] = i
	}

	for _, farmer := range farmers {
		var local []int
		for i, cp := range cps {
			if factoryRegion[cp.FactoryCode] == farmer.RegionCode {
				local = append(local, i)
			}
		}
		pool := local
		if len(pool) == 0 {
			pool = all
		}

		first := pool[b.rng.Intn(len(pool))]
		cps[first].AssignFarmer(farmer.Code)
		if len(pool) > 1 && b.rng.Float64() < 0.3 {
			second := pool[b.rng.Intn(len(pool))]
			cps[second].AssignFarmer(farmer.Code)
		}
	}
}

// uniqueCode slugs the base and suffixes a counter until the code is free
// for the entity type.
func (b *Builder) uniqueCode(entity snapshot.EntityType, base string) string {
	code := slug.Make(base)
	if !b.reg.Has(entity, code) {
		return code
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", code, i)
		if !b.reg.Has(entity, candidate) {
			return candidate
		}
	}
}

func (b *Builder) pick(list []string) string {
	return list[b.rng.Intn(len(list))]
}

type weighted struct {
	value  string
	weight float64
}

func (b *Builder) weightedPick(choices []weighted) string {
	total := 0.0
	for _, c := range choices {
		total += c.weight
	}
	roll := b.rng.Float64() * total
	for _, c := range choices {
		roll -= c.weight
		if roll < 0 {
			return c.value
		}
	}
	return choices[len(choices)-1].value
}

// dateIn draws a UTC midnight date inside the profile date range.
func (b *Builder) dateIn() time.Time {
	span := b.prof.DateRange.Days()
	day := b.prof.DateRange.From.AddDate(0, 0, b.rng.Intn(span))
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

// timeIn draws a timestamp inside the profile date range at a random time
// of day.
func (b *Builder) timeIn() time.Time {
	day := b.dateIn()
	return day.Add(time.Duration(b.rng.Intn(24*60*60)) * time.Second)
}

func roundTo(x float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(x*pow) / pow
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
