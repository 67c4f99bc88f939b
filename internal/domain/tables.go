package domain

var Tables = []interface{}{
	&Product{},
	&Participant{},
	&ChainTx{},
}
