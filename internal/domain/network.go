package domain

import "strings"

// Line is a named service and the stops it calls at, in order.
type Line struct {
	TransportType TransportType `json:"transportType" yaml:"transport"`
	Name          string        `json:"name" yaml:"name"`
	Stations      []string      `json:"stations" yaml:"stations"`
}

// StationSeparator joins station names in a route string.
const StationSeparator = " - "

// DefaultNetwork is the catalogue used for synthetic seeding and the simulated feed.
func DefaultNetwork() []Line {
	return []Line{
		{TransportTrain, "S1", []string{"Pruszków", "Warszawa Zachodnia", "Warszawa Śródmieście", "Warszawa Wschodnia", "Otwock"}},
		{TransportTrain, "S2", []string{"Sulejówek Miłosna", "Warszawa Wschodnia", "Warszawa Śródmieście", "Warszawa Zachodnia", "Warszawa Lotnisko Chopina"}},
		{TransportTrain, "S3", []string{"Warszawa Centralna", "Warszawa Gdańska", "Legionowo", "Wieliszew"}},
		{TransportTrain, "R1", []string{"Warszawa Centralna", "Warszawa Zachodnia", "Grodzisk Mazowiecki", "Skierniewice"}},
		{TransportBus, "175", []string{"Lotnisko Chopina", "Dworzec Centralny", "Plac Bankowy", "Plac Piłsudskiego"}},
		{TransportBus, "180", []string{"Chomiczówka", "Dworzec Gdański", "Plac Zamkowy", "Wilanów"}},
		{TransportBus, "523", []string{"PKP Olszynka Grochowska", "Dworzec Wschodni", "Rondo Dmowskiego", "Dworzec Zachodni", "Bemowo-Ratusz"}},
		{TransportBus, "E-2", []string{"Dworzec Wileński", "Ursynów", "Kabaty"}},
		{TransportRoad, "S8", []string{"Konotopa", "Salomea", "Marki"}},
		{TransportRoad, "A2", []string{"Konotopa", "Modlińska", "Lubelska"}},
		{TransportRoad, "Wisłostrada", []string{"Most Gdański", "Most Śląsko-Dąbrowski", "Most Łazienkowski"}},
	}
}

// Route renders the stations as a route string.
func (l Line) Route() string {
	return strings.Join(l.Stations, StationSeparator)
}
