package models

import "errors"

// ErrDuplicateSKU товар с таким SKU или внешним идентификатором уже есть в каталоге
var ErrDuplicateSKU = errors.New("product with this sku already exists")
